package main

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/config"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pharmaconnect",
		Short: "PharmaConnect storefront client",
		Long: "Command line client for the PharmaConnect online pharmacy: cart and " +
			"checkout against the remote backend, plus the local prescription " +
			"review and notification store.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newCartCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newWhoAmICommand(),
		newOrderCommand(),
		newRxCommand(),
		newNotificationsCommand(),
		newWatchCommand(),
		newServeCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("api-base-url", defaults.GetString("api.base_url"), "Backend API base URL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite profile database path")
	cmd.PersistentFlags().String("storage-backend", defaults.GetString("storage.backend"), "Profile storage backend (memory, sqlite, redis)")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the redis backend")
	cmd.PersistentFlags().String("redis-password", defaults.GetString("redis.password"), "Redis password for the redis backend")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("stub-address", defaults.GetString("stub.address"), "Listen address for the stub backend")

	bindFlag(cmd, "api.base_url", "api-base-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "storage.backend", "storage-backend")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "redis.password", "redis-password")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "stub.address", "stub-address")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// Local .env files override nothing already exported in the shell.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
