// Command initdb creates the fleet schema: the four tables and their
// indexes. Idempotent, safe to run repeatedly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/observability"
	"github.com/fairyhunter13/scrape-fleet/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/scrape-fleet/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := observability.SetupLogger(cfg)
	slog.SetDefault(log)

	fmt.Printf("Initializing %s on %s:%d\n", cfg.DBName, cfg.DBHost, cfg.DBPort)

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

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		fmt.Fprintln(os.Stderr, "schema:", err)
		os.Exit(1)
	}

	fmt.Println("Schema ready.")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Load tasks:    uploadtasks [file]")
	fmt.Println("  2. Load proxies:  uploadproxies [file]")
	fmt.Println("  3. Start workers: docker compose up -d worker")
	fmt.Println("  4. Monitor:       status")
}
