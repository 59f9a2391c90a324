package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tipster-app/tipster/internal/config"
	"github.com/tipster-app/tipster/internal/emulator"
	"github.com/tipster-app/tipster/internal/infra"
	"github.com/tipster-app/tipster/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	// Both stores fall back to memory, so a bare `devbackend` run needs
	// no services at all.
	store := emulator.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := emulator.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("migrate schema", "error", err)
			os.Exit(1)
		}
		store = pg
		logger.Info("using postgres store")
	}

	var sessions emulator.RefreshStore = emulator.NewMemoryRefreshStore()
	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		sessions = emulator.NewRedisRefreshStore(cache)
		logger.Info("using redis refresh store")
	}

	srv := emulator.New(cfg, store, sessions, logger)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	logger.Info("development backend listening", "address", cfg.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
