// Command worker runs the scraping fleet: WORKERS_COUNT slots that
// lease tasks and proxies from PostgreSQL and scrape listing pages
// through the configured driver until the queue drains or a shutdown
// signal arrives.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/driver/proxyhttp"
	"github.com/fairyhunter13/scrape-fleet/internal/adapter/driver/stub"
	"github.com/fairyhunter13/scrape-fleet/internal/adapter/observability"
	"github.com/fairyhunter13/scrape-fleet/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/scrape-fleet/internal/adapter/site/avito"
	"github.com/fairyhunter13/scrape-fleet/internal/app"
	"github.com/fairyhunter13/scrape-fleet/internal/config"
	"github.com/fairyhunter13/scrape-fleet/internal/domain"
	"github.com/fairyhunter13/scrape-fleet/internal/service/fleet"
	"github.com/fairyhunter13/scrape-fleet/internal/usecase"
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

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DSN(), postgres.PoolOptions{
		MinConns:       5,
		MaxConns:       20,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		slog.Error("db_connect_failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	opsCtx, stopOps := context.WithCancel(ctx)
	defer stopOps()
	go func() {
		if err := app.ServeOps(opsCtx, cfg.OpsAddr, pool, logger); err != nil {
			slog.Error("ops_server_error", slog.Any("error", err))
		}
	}()

	profile, err := avito.LoadProfile(cfg.SiteProfilePath)
	if err != nil {
		slog.Error("site_profile_load_failed", slog.Any("error", err))
		os.Exit(1)
	}

	var drv domain.Driver
	switch cfg.Driver {
	case "stub":
		drv = stub.New()
	default:
		drv = proxyhttp.New(cfg.DriverTimeout)
	}

	detector := avito.NewDetector(profile)
	scraper := usecase.NewScraper(detector, avito.NewParser(profile), avito.NewResolver(detector), cfg.CaptchaMaxAttempts)

	retry := postgres.RetryPolicy{Attempts: cfg.DBRetryAttempts, Delay: cfg.RetryDelay}
	repos := fleet.Repos{
		Tasks:   postgres.NewTaskRepo(pool, retry),
		Proxies: postgres.NewProxyRepo(pool, retry),
		Workers: postgres.NewWorkerRepo(pool, retry),
		Results: postgres.NewResultRepo(pool, retry),
	}
	fl := fleet.New(repos, drv, scraper, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown_signal_received", slog.String("signal", sig.String()))
		fl.Shutdown()
	}()

	slog.Info("app_start",
		slog.Int("workers_count", cfg.WorkersCount),
		slog.String("driver", cfg.Driver))
	fl.Run(ctx, fleet.BaseWorkerID(cfg.ProgramID))

	stopOps()
	slog.Info("app_shutdown")
}
