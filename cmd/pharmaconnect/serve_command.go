package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/auth"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/config"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/logging"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the development stub of the pharmacy backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStubServer(cmd.Context())
		},
	}
}

func runStubServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, false)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.StubSecret),
		Issuer:        "pharmaconnect-auth",
		Audience:      "pharmaconnect-api",
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens: tokenIssuer,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.StubAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stub backend starting", zap.String("address", appConfig.StubAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
