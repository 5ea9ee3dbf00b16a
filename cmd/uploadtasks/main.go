// Command uploadtasks seeds the tasks table from a text file carrying
// one listing item id per line. Interactive: asks whether to append to
// the existing queue or overwrite it.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/observability"
	"github.com/fairyhunter13/scrape-fleet/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/scrape-fleet/internal/config"
	"github.com/fairyhunter13/scrape-fleet/internal/service/loader"
)

const defaultItemsFile = "data/items.txt"

func askMode(in *bufio.Reader) (loader.Mode, error) {
	fmt.Println("Select load mode:")
	fmt.Println("  1) append    - add new tasks, keep existing rows")
	fmt.Println("  2) overwrite - delete every task, then load")
	for {
		fmt.Print("Mode (1 or 2): ")
		line, err := in.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read mode: %w", err)
		}
		switch strings.TrimSpace(line) {
		case "1":
			return loader.Append, nil
		case "2":
			return loader.Overwrite, nil
		}
		fmt.Println("  invalid choice, enter 1 or 2")
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := observability.SetupLogger(cfg)
	slog.SetDefault(log)

	path := defaultItemsFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	fmt.Printf("Loading tasks into %s:%d/%s\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
	fmt.Printf("Reading %s\n", path)

	items, err := loader.ReadItems(log, path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read items:", err)
		os.Exit(1)
	}
	fmt.Printf("  read %d item ids\n\n", len(items))

	mode, err := askMode(bufio.NewReader(os.Stdin))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

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

	repo := postgres.NewTaskRepo(pool, postgres.RetryPolicy{Attempts: cfg.DBRetryAttempts, Delay: cfg.RetryDelay})
	rep, err := loader.LoadTasks(ctx, log, repo, items, cfg.MaxTaskAttempts, mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tasks:", err)
		os.Exit(1)
	}

	fmt.Printf("\nTasks loaded (%s)\n", mode)
	if mode == loader.Overwrite {
		fmt.Printf("  deleted: %d\n", rep.Deleted)
	}
	fmt.Printf("  added:   %d\n", rep.Added)
	fmt.Printf("  skipped: %d\n", rep.Skipped)
	fmt.Printf("  total:   %d\n", rep.Total)
}
