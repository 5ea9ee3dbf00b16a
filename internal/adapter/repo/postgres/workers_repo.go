package postgres

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// WorkerRepo maintains the per-slot heartbeat rows.
type WorkerRepo struct {
	Pool  PgxPool
	Retry RetryPolicy
}

// NewWorkerRepo constructs a WorkerRepo with the given pool and retry budget.
func NewWorkerRepo(p PgxPool, retry RetryPolicy) *WorkerRepo {
	return &WorkerRepo{Pool: p, Retry: retry}
}

// Heartbeat upserts the worker row: first call registers the slot,
// every later call refreshes last_heartbeat and revives a row the
// janitor may have stamped stopped.
func (r *WorkerRepo) Heartbeat(ctx domain.Context, workerID string) error {
	tracer := otel.Tracer("repo.workers")
	ctx, span := tracer.Start(ctx, "workers.Heartbeat")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "workers"),
	)
	q := `INSERT INTO workers (worker_id) VALUES ($1)
ON CONFLICT (worker_id) DO UPDATE SET last_heartbeat=NOW(), status='active'`
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		_, err := r.Pool.Exec(ctx, q, workerID)
		return err
	})
	if err != nil {
		return fmt.Errorf("op=worker.heartbeat: %w", err)
	}
	return nil
}

// IncrementStats bumps the processed or failed counter for a slot.
func (r *WorkerRepo) IncrementStats(ctx domain.Context, workerID string, success bool) error {
	tracer := otel.Tracer("repo.workers")
	ctx, span := tracer.Start(ctx, "workers.IncrementStats")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "workers"),
	)
	q := `UPDATE workers
SET tasks_processed = tasks_processed + CASE WHEN $2 THEN 1 ELSE 0 END,
    tasks_failed    = tasks_failed    + CASE WHEN $2 THEN 0 ELSE 1 END
WHERE worker_id=$1`
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		_, err := r.Pool.Exec(ctx, q, workerID, success)
		return err
	})
	if err != nil {
		return fmt.Errorf("op=worker.increment_stats: %w", err)
	}
	return nil
}
