// Command status prints a one-shot census of the fleet tables: task,
// proxy and worker counts by status plus the stuck resources the
// janitor would reclaim on its next sweep.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/observability"
	"github.com/fairyhunter13/scrape-fleet/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/scrape-fleet/internal/config"
	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := observability.SetupLogger(cfg)
	slog.SetDefault(log)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DSN(), postgres.PoolOptions{
		MinConns:       1,
		MaxConns:       2,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "db connect:", err)
		os.Exit(1)
	}
	defer pool.Close()

	th := domain.SnapshotThresholds{
		TaskTimeout:   cfg.TaskTimeout,
		ProxyTimeout:  cfg.ProxyTimeout,
		WorkerTimeout: cfg.WorkerTimeout,
	}
	repo := postgres.NewStatusRepo(pool, postgres.RetryPolicy{Attempts: cfg.DBRetryAttempts, Delay: cfg.RetryDelay})
	snap, err := repo.Snapshot(ctx, th)
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapshot:", err)
		os.Exit(1)
	}

	printReport(os.Stdout, cfg.DBName, snap, th)
}

func printReport(w io.Writer, db string, snap domain.FleetSnapshot, th domain.SnapshotThresholds) {
	banner := strings.Repeat("=", 80)
	rule := strings.Repeat("-", 80)

	fmt.Fprintln(w, banner)
	fmt.Fprintf(w, "FLEET STATUS %s\n", db)
	fmt.Fprintln(w, banner)
	fmt.Fprintf(w, "Date: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Results stored: %d\n", snap.Results)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "TASKS:")
	fmt.Fprintf(w, "  pending:    %d\n", snap.Tasks.Pending)
	fmt.Fprintf(w, "  processing: %d\n", snap.Tasks.Processing)
	fmt.Fprintf(w, "  completed:  %d\n", snap.Tasks.Completed)
	fmt.Fprintf(w, "  failed:     %d\n", snap.Tasks.Failed)
	fmt.Fprintln(w, "  -----------------")
	fmt.Fprintf(w, "  total:      %d\n", snap.Tasks.Total())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PROXIES:")
	fmt.Fprintf(w, "  available:  %d\n", snap.Proxies.Available)
	fmt.Fprintf(w, "  locked:     %d\n", snap.Proxies.Locked)
	fmt.Fprintf(w, "  blocked:    %d\n", snap.Proxies.Blocked)
	fmt.Fprintln(w, "  -----------------")
	fmt.Fprintf(w, "  total:      %d\n", snap.Proxies.Total())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "WORKERS:")
	fmt.Fprintf(w, "  active:     %d\n", snap.Workers.Active)
	fmt.Fprintf(w, "  stopped:    %d\n", snap.Workers.Stopped)
	fmt.Fprintln(w, "  -----------------")
	fmt.Fprintf(w, "  total:      %d\n", snap.Workers.Total())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SYSTEM HEALTH:")
	h := snap.Health
	if h.StuckTasks > 0 || h.StuckProxies > 0 || h.DeadWorkers > 0 {
		fmt.Fprintf(w, "  ! stuck tasks (processing > %s):    %d\n", th.TaskTimeout, h.StuckTasks)
		fmt.Fprintf(w, "  ! stuck proxies (locked > %s):      %d\n", th.ProxyTimeout, h.StuckProxies)
		fmt.Fprintf(w, "  ! dead workers (no heartbeat > %s): %d\n", th.WorkerTimeout, h.DeadWorkers)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Attention needed:")
		fmt.Fprintln(w, "    - make sure the janitor is running: docker compose up -d janitor")
		if h.DeadWorkers > 0 {
			fmt.Fprintln(w, "    - check worker logs: docker compose logs worker")
		}
		if snap.Proxies.Available == 0 && snap.Proxies.Locked > 0 {
			fmt.Fprintln(w, "    - every proxy is leased, consider adding more")
		}
	} else {
		fmt.Fprintln(w, "  ok - all clear")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Checks:")
		fmt.Fprintf(w, "    ok  no stuck tasks (processing > %s)\n", th.TaskTimeout)
		fmt.Fprintf(w, "    ok  no stuck proxies (locked > %s)\n", th.ProxyTimeout)
		fmt.Fprintf(w, "    ok  no dead workers (no heartbeat > %s)\n", th.WorkerTimeout)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, banner)
}
