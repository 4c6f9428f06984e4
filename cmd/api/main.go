package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/journeyforge/api/internal/di"
	"github.com/journeyforge/api/internal/platform/config"
	"github.com/journeyforge/api/internal/platform/observability"
	"github.com/journeyforge/api/internal/platform/secrets"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	loadOpts := []config.Option{
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	}
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		loadOpts = append(loadOpts, config.WithEnvFile(envFile))
	}
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build dependency graph", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	router := container.Router(
		observability.TraceMiddleware(),
		observability.InjectLoggerMiddleware(logger),
		observability.RequestLoggerMiddleware(),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		container.Sweeper.Run(runCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api server listening",
			zap.String("addr", server.Addr),
			zap.Duration("sweep_interval", cfg.Orders.SweepInterval),
			zap.Duration("expiry_window", cfg.Orders.ExpiryWindow))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", zap.Error(err))
		}
	case <-runCtx.Done():
		logger.Info("shutdown signal received")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}

	select {
	case <-sweepDone:
	case <-shutdownCtx.Done():
		logger.Warn("sweeper did not stop before deadline")
	}

	logger.Info("api server stopped")
}
