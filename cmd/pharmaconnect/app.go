package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/cart"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/config"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/database"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/events"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/gateway"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/logging"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/rx"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/session"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
)

// application bundles the wired client stack for one CLI invocation.
type application struct {
	Config   config.AppConfig
	Logger   *zap.Logger
	Store    storage.Store
	Bus      *events.Bus
	Sessions *session.Manager
	Gateway  *gateway.Client
	Cart     *cart.Service
	Rx       *rx.Store

	closers []func()
}

// newApplication loads configuration and wires every component. The caller
// must invoke Close when done.
func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, true)
	if err != nil {
		return nil, err
	}

	app := &application{Config: appConfig, Logger: logger}
	app.closers = append(app.closers, func() {
		_ = logger.Sync()
	})

	store, err := app.openStore(appConfig)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store
	app.Bus = events.NewBus()

	sessions, err := session.NewManager(store, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Sessions = sessions

	client, err := gateway.NewClient(gateway.ClientConfig{
		BaseURL: appConfig.APIBaseURL,
		Tokens:  sessions,
		Logger:  logger,
		// A rejected token means the stored session is stale. Drop it so
		// the next command runs as a guest instead of looping on 401s.
		OnUnauthorized: func() {
			if err := sessions.Clear(context.Background()); err != nil {
				logger.Warn("failed to clear stale session", zap.Error(err))
			}
		},
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Gateway = client

	cartService, err := cart.NewService(cart.ServiceConfig{
		Gateway:  client,
		Sessions: sessions,
		Store:    store,
		Bus:      app.Bus,
		Logger:   logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Cart = cartService

	rxStore, err := rx.NewStore(rx.StoreConfig{
		Store:  store,
		Bus:    app.Bus,
		Logger: logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Rx = rxStore

	return app, nil
}

func (a *application) openStore(appConfig config.AppConfig) (storage.Store, error) {
	switch strings.ToLower(strings.TrimSpace(appConfig.StorageBackend)) {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "redis":
		return storage.NewRedisStore(appConfig.RedisAddress, appConfig.RedisPassword), nil
	case "sqlite":
		db, err := database.OpenSQLite(appConfig.DatabasePath, a.Logger)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, func() {
				_ = sqlDB.Close()
			})
		}
		return storage.NewSQLiteStore(storage.SQLiteStoreConfig{Database: db})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", appConfig.StorageBackend)
	}
}

// currentUserKey resolves the notification scope for the signed-in user, or
// the guest scope when no session exists.
func (a *application) currentUserKey(ctx context.Context) (string, error) {
	user, err := a.Sessions.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	return session.UserKey(user), nil
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
