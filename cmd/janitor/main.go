// Command janitor reclaims leases the fleet lost track of: stuck
// processing tasks, expired proxy locks, silent workers and tasks that
// ran out of attempts. One sweep per CLEANUP_INTERVAL.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/observability"
	"github.com/fairyhunter13/scrape-fleet/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/scrape-fleet/internal/app"
	"github.com/fairyhunter13/scrape-fleet/internal/config"
	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("tracing_setup_failed", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DSN(), postgres.PoolOptions{
		MinConns:       2,
		MaxConns:       5,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		slog.Error("db_connect_failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The janitor shares hosts with workers; move off the worker's
	// default ops port unless OPS_ADDR says otherwise.
	opsAddr := cfg.OpsAddr
	if os.Getenv("OPS_ADDR") == "" {
		opsAddr = ":9091"
	}
	go func() {
		if err := app.ServeOps(ctx, opsAddr, pool, logger); err != nil {
			slog.Error("ops_server_error", slog.Any("error", err))
		}
	}()

	retry := postgres.RetryPolicy{Attempts: cfg.DBRetryAttempts, Delay: cfg.RetryDelay}
	janitor := postgres.NewJanitor(pool, retry, domain.SnapshotThresholds{
		TaskTimeout:   cfg.TaskTimeout,
		ProxyTimeout:  cfg.ProxyTimeout,
		WorkerTimeout: cfg.WorkerTimeout,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown_signal_received", slog.String("signal", sig.String()))
		cancel()
	}()

	slog.Info("app_start", slog.Duration("cleanup_interval", cfg.CleanupInterval))
	janitor.RunPeriodic(ctx, cfg.CleanupInterval)
	slog.Info("app_shutdown")
}
