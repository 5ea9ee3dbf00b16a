package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// TaskRepo leases and settles tasks using a minimal pgx pool.
type TaskRepo struct {
	Pool  PgxPool
	Retry RetryPolicy
}

// NewTaskRepo constructs a TaskRepo with the given pool and retry budget.
func NewTaskRepo(p PgxPool, retry RetryPolicy) *TaskRepo { return &TaskRepo{Pool: p, Retry: retry} }

// Acquire leases the oldest pending task for workerID in one statement.
// SKIP LOCKED keeps concurrent workers from blocking on the same row;
// the id tiebreak makes the order total even within one timestamp.
// Returns (nil, nil) when the queue is drained.
func (r *TaskRepo) Acquire(ctx domain.Context, workerID string) (*domain.Task, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Acquire")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "tasks"),
	)
	q := `UPDATE tasks
SET status='processing', worker_id=$1, last_attempt_at=NOW(), attempts=attempts+1
WHERE id = (
    SELECT id FROM tasks
    WHERE status='pending'
    ORDER BY created_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, item_id, attempts`
	var t *domain.Task
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		var got domain.Task
		if err := r.Pool.QueryRow(ctx, q, workerID).Scan(&got.ID, &got.ItemID, &got.Attempts); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				t = nil
				return nil
			}
			return err
		}
		got.Status = domain.TaskProcessing
		got.WorkerID = &workerID
		t = &got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=task.acquire: %w", err)
	}
	return t, nil
}

// MarkCompleted finalizes a task and releases its worker binding.
func (r *TaskRepo) MarkCompleted(ctx domain.Context, taskID int64) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.MarkCompleted")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "tasks"),
	)
	q := `UPDATE tasks SET status='completed', completed_at=NOW(), worker_id=NULL WHERE id=$1`
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		_, err := r.Pool.Exec(ctx, q, taskID)
		return err
	})
	if err != nil {
		return fmt.Errorf("op=task.mark_completed: %w", err)
	}
	return nil
}

// Release hands a failed attempt back: pending while attempts remain,
// failed once the per-task maximum is spent. The attempt counter keeps
// the value the acquire gave it.
func (r *TaskRepo) Release(ctx domain.Context, taskID int64) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Release")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "tasks"),
	)
	q := `UPDATE tasks
SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
    worker_id = NULL, last_attempt_at = NULL
WHERE id=$1`
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		_, err := r.Pool.Exec(ctx, q, taskID)
		return err
	})
	if err != nil {
		return fmt.Errorf("op=task.release: %w", err)
	}
	return nil
}

// InsertItems adds tasks for the given item ids, silently skipping
// ones already present. Retries are safe: the conflict clause makes
// the whole pass idempotent.
func (r *TaskRepo) InsertItems(ctx domain.Context, itemIDs []int64, maxAttempts int) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.InsertItems")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "tasks"),
	)
	q := `INSERT INTO tasks (item_id, max_attempts) VALUES ($1, $2) ON CONFLICT (item_id) DO NOTHING`
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		for _, id := range itemIDs {
			if _, err := r.Pool.Exec(ctx, q, id, maxAttempts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("op=task.insert_items: %w", err)
	}
	return nil
}

// Count returns the total number of tasks.
func (r *TaskRepo) Count(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Count")
	defer span.End()
	q := `SELECT COUNT(*) FROM tasks`
	var count int64
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		return r.Pool.QueryRow(ctx, q).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("op=task.count: %w", err)
	}
	return count, nil
}

// DeleteAll wipes the tasks table and reports how many rows went.
func (r *TaskRepo) DeleteAll(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.DeleteAll")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "tasks"),
	)
	var deleted int64
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		tag, err := r.Pool.Exec(ctx, `DELETE FROM tasks`)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("op=task.delete_all: %w", err)
	}
	return deleted, nil
}
