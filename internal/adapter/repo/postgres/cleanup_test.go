package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

func testThresholds() domain.SnapshotThresholds {
	return domain.SnapshotThresholds{
		TaskTimeout:   600 * time.Second,
		ProxyTimeout:  300 * time.Second,
		WorkerTimeout: 240 * time.Second,
	}
}

func TestJanitorSweepOnceRunsFourSteps(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 2")}
	j := postgres.NewJanitor(pool, fastRetry(1), testThresholds())

	st := j.SweepOnce(context.Background())
	assert.Equal(t, int64(2), st.TasksReleased)
	assert.Equal(t, int64(2), st.ProxiesFreed)
	assert.Equal(t, int64(2), st.WorkersStopped)
	assert.Equal(t, int64(2), st.TasksFailed)
	assert.Equal(t, 0, st.Errors)

	calls := pool.recorded()
	require.Len(t, calls, 4)

	assert.Contains(t, calls[0].sql, "UPDATE tasks")
	assert.Contains(t, calls[0].sql, "status='processing' AND last_attempt_at <")
	assert.Contains(t, calls[0].sql, "make_interval(secs => $1)")
	assert.Equal(t, []any{float64(600)}, calls[0].args)

	assert.Contains(t, calls[1].sql, "UPDATE proxies")
	assert.Contains(t, calls[1].sql, "status='locked' AND locked_at <")
	assert.Equal(t, []any{float64(300)}, calls[1].args)

	assert.Contains(t, calls[2].sql, "UPDATE workers")
	assert.Contains(t, calls[2].sql, "status='active' AND last_heartbeat <")
	assert.Equal(t, []any{float64(240)}, calls[2].args)

	assert.Contains(t, calls[3].sql, "attempts >= max_attempts")
	assert.Contains(t, calls[3].sql, "status='pending'")
	assert.Empty(t, calls[3].args)
}

func TestJanitorSweepOnceStepFailureDoesNotAbortCycle(t *testing.T) {
	pool := &poolStub{
		execTag:  pgconn.NewCommandTag("UPDATE 1"),
		execErrs: []error{errors.New("deadlock detected")},
	}
	j := postgres.NewJanitor(pool, fastRetry(1), testThresholds())

	st := j.SweepOnce(context.Background())
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, int64(0), st.TasksReleased)
	assert.Equal(t, int64(1), st.ProxiesFreed)
	assert.Equal(t, int64(1), st.WorkersStopped)
	assert.Equal(t, int64(1), st.TasksFailed)
	assert.Len(t, pool.recorded(), 4)
}

func TestJanitorSweepOnceRetriesWithinStep(t *testing.T) {
	pool := &poolStub{
		execTag:  pgconn.NewCommandTag("UPDATE 3"),
		execErrs: []error{errors.New("connection reset")},
	}
	j := postgres.NewJanitor(pool, fastRetry(2), testThresholds())

	st := j.SweepOnce(context.Background())
	assert.Equal(t, 0, st.Errors)
	assert.Equal(t, int64(3), st.TasksReleased)
	// first step needed two tries, the rest one each
	assert.Len(t, pool.recorded(), 5)
}

func TestJanitorRunPeriodicSweepsImmediatelyThenStops(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 0")}
	j := postgres.NewJanitor(pool, fastRetry(1), testThresholds())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.RunPeriodic(ctx, time.Hour)

	assert.Len(t, pool.recorded(), 4)
}
