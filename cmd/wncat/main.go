// wncat catalog sync entry point
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dylanlee/wncat/internal/config"
	"github.com/dylanlee/wncat/internal/observability"
	"github.com/dylanlee/wncat/pkg/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("starting wncat",
		"catalog", cfg.Catalog.ID,
		"store", cfg.Store.Type,
		"bucket", cfg.Store.Bucket,
		"index", cfg.Index.Type,
		"interval", cfg.Sync.Interval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	// Ops endpoints run alongside the sync for the life of the process.
	opsErr := make(chan error, 1)
	go func() {
		opsErr <- srv.ListenAndServe(ctx)
	}()

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- srv.Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-syncErr:
	case err := <-opsErr:
		if err != nil {
			runErr = fmt.Errorf("ops server error: %w", err)
		}
		stop()
		runErr = errors.Join(runErr, <-syncErr)
	}
	if ctx.Err() != nil {
		logger.Info("received shutdown signal")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("ops server shutdown error: %w", err))
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("wncat stopped")
	return nil
}
