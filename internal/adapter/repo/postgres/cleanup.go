package postgres

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/observability"
	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// Janitor reclaims leases whose holders went quiet and finalizes tasks
// that ran out of attempts. Every step is one idempotent UPDATE, so
// overlapping janitors and repeated sweeps are harmless. A failing
// step is logged and skipped; it never aborts the cycle.
type Janitor struct {
	Pool       PgxPool
	Retry      RetryPolicy
	Thresholds domain.SnapshotThresholds
}

// NewJanitor constructs a Janitor with the given pool, retry budget
// and staleness thresholds.
func NewJanitor(pool PgxPool, retry RetryPolicy, th domain.SnapshotThresholds) *Janitor {
	return &Janitor{Pool: pool, Retry: retry, Thresholds: th}
}

// SweepStats counts the rows each step touched in one cycle.
type SweepStats struct {
	TasksReleased  int64
	ProxiesFreed   int64
	WorkersStopped int64
	TasksFailed    int64
	Errors         int
}

var sweepEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

func newSweepID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), sweepEntropy)
	if err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id.String()
}

// SweepOnce runs the four reclamation steps in order: stuck tasks back
// to pending (attempts untouched, the lease bump already counted the
// try), stuck proxies back to available, silent workers to stopped,
// and out-of-attempts pending tasks to failed.
func (j *Janitor) SweepOnce(ctx context.Context) SweepStats {
	tracer := otel.Tracer("repo.janitor")
	ctx, span := tracer.Start(ctx, "janitor.SweepOnce")
	defer span.End()
	start := time.Now()

	var st SweepStats
	st.TasksReleased = j.step(ctx, &st, "stuck_tasks", `UPDATE tasks
SET status='pending', worker_id=NULL, last_attempt_at=NULL
WHERE status='processing' AND last_attempt_at < NOW() - make_interval(secs => $1)`,
		j.Thresholds.TaskTimeout.Seconds())

	st.ProxiesFreed = j.step(ctx, &st, "stuck_proxies", `UPDATE proxies
SET status='available', locked_by=NULL, locked_at=NULL, last_used_at=NOW()
WHERE status='locked' AND locked_at < NOW() - make_interval(secs => $1)`,
		j.Thresholds.ProxyTimeout.Seconds())

	st.WorkersStopped = j.step(ctx, &st, "dead_workers", `UPDATE workers
SET status='stopped'
WHERE status='active' AND last_heartbeat < NOW() - make_interval(secs => $1)`,
		j.Thresholds.WorkerTimeout.Seconds())

	st.TasksFailed = j.step(ctx, &st, "failed_tasks", `UPDATE tasks
SET status='failed'
WHERE status='pending' AND attempts >= max_attempts`)

	observability.JanitorSweepDuration.Observe(time.Since(start).Seconds())
	slog.Info("cleanup_cycle",
		slog.String("sweep_id", newSweepID()),
		slog.Int64("tasks_released", st.TasksReleased),
		slog.Int64("proxies_released", st.ProxiesFreed),
		slog.Int64("workers_stopped", st.WorkersStopped),
		slog.Int64("tasks_failed", st.TasksFailed),
		slog.Int("errors", st.Errors),
		slog.Duration("elapsed", time.Since(start)))
	return st
}

func (j *Janitor) step(ctx context.Context, st *SweepStats, name, q string, args ...any) int64 {
	var n int64
	err := withRetry(ctx, j.Retry, func(ctx context.Context) error {
		tag, err := j.Pool.Exec(ctx, q, args...)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		st.Errors++
		observability.JanitorSweepErrors.WithLabelValues(name).Inc()
		slog.Error("cleanup_step_failed", slog.String("step", name), slog.Any("error", err))
		return 0
	}
	if n > 0 {
		observability.JanitorReclaimedTotal.WithLabelValues(name).Add(float64(n))
	}
	return n
}

// RunPeriodic sweeps immediately and then on every tick until ctx is
// done. A cancellation between ticks stops the loop; a cancellation
// during a sweep lets the in-flight cycle finish first.
func (j *Janitor) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.SweepOnce(context.WithoutCancel(ctx))
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup_stopping")
			return
		case <-ticker.C:
			j.SweepOnce(context.WithoutCancel(ctx))
		}
	}
}
