package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "PHARMACONNECT"
	defaultAPIBaseURL     = "http://localhost:8080/api"
	defaultDatabasePath   = "pharmaconnect.db"
	defaultLogLevel       = "info"
	defaultStorageBackend = "sqlite"
	defaultStubAddress    = "0.0.0.0:8080"
	defaultStubSecret     = "dev-only-signing-secret"
)

// AppConfig captures runtime configuration for the storefront client.
type AppConfig struct {
	APIBaseURL     string
	DatabasePath   string
	StorageBackend string
	RedisAddress   string
	RedisPassword  string
	LogLevel       string
	StubAddress    string
	StubSecret     string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("storage.backend", defaultStorageBackend)
	configViper.SetDefault("redis.address", "localhost:6379")
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("stub.address", defaultStubAddress)
	configViper.SetDefault("stub.signing_secret", defaultStubSecret)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		APIBaseURL:     configViper.GetString("api.base_url"),
		DatabasePath:   configViper.GetString("database.path"),
		StorageBackend: configViper.GetString("storage.backend"),
		RedisAddress:   configViper.GetString("redis.address"),
		RedisPassword:  configViper.GetString("redis.password"),
		LogLevel:       configViper.GetString("log.level"),
		StubAddress:    configViper.GetString("stub.address"),
		StubSecret:     configViper.GetString("stub.signing_secret"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case "memory", "redis":
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, sqlite, redis")
	}
	if strings.ToLower(strings.TrimSpace(c.StorageBackend)) == "redis" && strings.TrimSpace(c.RedisAddress) == "" {
		return fmt.Errorf("redis.address is required for the redis backend")
	}
	return nil
}
