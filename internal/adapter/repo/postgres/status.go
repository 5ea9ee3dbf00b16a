package postgres

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// StatusRepo aggregates the read-only fleet census for the status
// report. It shares the janitor's staleness thresholds so the report
// and the sweeps agree on what counts as stuck.
type StatusRepo struct {
	Pool  PgxPool
	Retry RetryPolicy
}

// NewStatusRepo constructs a StatusRepo with the given pool and retry budget.
func NewStatusRepo(p PgxPool, retry RetryPolicy) *StatusRepo {
	return &StatusRepo{Pool: p, Retry: retry}
}

// Snapshot collects grouped status counts for tasks, proxies and
// workers, the total of stored results, and the three staleness
// counts. Statuses missing from a table are reported as zero.
func (r *StatusRepo) Snapshot(ctx domain.Context, th domain.SnapshotThresholds) (domain.FleetSnapshot, error) {
	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.Snapshot")
	defer span.End()

	var snap domain.FleetSnapshot
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		snap = domain.FleetSnapshot{}

		taskCounts, err := r.groupCounts(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
		if err != nil {
			return err
		}
		snap.Tasks = domain.TaskCounts{
			Pending:    taskCounts[string(domain.TaskPending)],
			Processing: taskCounts[string(domain.TaskProcessing)],
			Completed:  taskCounts[string(domain.TaskCompleted)],
			Failed:     taskCounts[string(domain.TaskFailed)],
		}

		proxyCounts, err := r.groupCounts(ctx, `SELECT status, COUNT(*) FROM proxies GROUP BY status`)
		if err != nil {
			return err
		}
		snap.Proxies = domain.ProxyCounts{
			Available: proxyCounts[string(domain.ProxyAvailable)],
			Locked:    proxyCounts[string(domain.ProxyLocked)],
			Blocked:   proxyCounts[string(domain.ProxyBlocked)],
		}

		workerCounts, err := r.groupCounts(ctx, `SELECT status, COUNT(*) FROM workers GROUP BY status`)
		if err != nil {
			return err
		}
		snap.Workers = domain.WorkerCounts{
			Active:  workerCounts[string(domain.WorkerActive)],
			Stopped: workerCounts[string(domain.WorkerStopped)],
		}

		if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM results`).Scan(&snap.Results); err != nil {
			return err
		}

		if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks
WHERE status='processing' AND last_attempt_at < NOW() - make_interval(secs => $1)`,
			th.TaskTimeout.Seconds()).Scan(&snap.Health.StuckTasks); err != nil {
			return err
		}
		if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM proxies
WHERE status='locked' AND locked_at < NOW() - make_interval(secs => $1)`,
			th.ProxyTimeout.Seconds()).Scan(&snap.Health.StuckProxies); err != nil {
			return err
		}
		return r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM workers
WHERE status='active' AND last_heartbeat < NOW() - make_interval(secs => $1)`,
			th.WorkerTimeout.Seconds()).Scan(&snap.Health.DeadWorkers)
	})
	if err != nil {
		return domain.FleetSnapshot{}, fmt.Errorf("op=status.snapshot: %w", err)
	}
	return snap, nil
}

func (r *StatusRepo) groupCounts(ctx context.Context, q string) (map[string]int64, error) {
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
