package postgres_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/repo/postgres"
)

func TestStatusRepoSnapshot(t *testing.T) {
	pool := &poolStub{}
	pool.queryFn = func(sql string, _ []any) (pgx.Rows, error) {
		switch {
		case strings.Contains(sql, "FROM tasks"):
			return &rowsStub{rows: []countRow{
				{label: "pending", n: 10},
				{label: "processing", n: 2},
				{label: "completed", n: 30},
			}}, nil
		case strings.Contains(sql, "FROM proxies"):
			return &rowsStub{rows: []countRow{
				{label: "available", n: 5},
				{label: "blocked", n: 1},
			}}, nil
		case strings.Contains(sql, "FROM workers"):
			return &rowsStub{rows: []countRow{
				{label: "active", n: 15},
			}}, nil
		}
		return nil, errors.New("unexpected query: " + sql)
	}
	counts := []int64{30, 1, 0, 2}
	pool.rowFn = func(_ string, _ []any) pgx.Row {
		return rowStub{scan: func(dest ...any) error {
			*(dest[0].(*int64)) = counts[0]
			counts = counts[1:]
			return nil
		}}
	}
	repo := postgres.NewStatusRepo(pool, fastRetry(1))

	snap, err := repo.Snapshot(context.Background(), testThresholds())
	require.NoError(t, err)

	assert.Equal(t, int64(10), snap.Tasks.Pending)
	assert.Equal(t, int64(2), snap.Tasks.Processing)
	assert.Equal(t, int64(30), snap.Tasks.Completed)
	assert.Equal(t, int64(0), snap.Tasks.Failed)
	assert.Equal(t, int64(42), snap.Tasks.Total())

	assert.Equal(t, int64(5), snap.Proxies.Available)
	assert.Equal(t, int64(0), snap.Proxies.Locked)
	assert.Equal(t, int64(1), snap.Proxies.Blocked)

	assert.Equal(t, int64(15), snap.Workers.Active)
	assert.Equal(t, int64(0), snap.Workers.Stopped)

	assert.Equal(t, int64(30), snap.Results)
	assert.Equal(t, int64(1), snap.Health.StuckTasks)
	assert.Equal(t, int64(0), snap.Health.StuckProxies)
	assert.Equal(t, int64(2), snap.Health.DeadWorkers)
}

func TestStatusRepoSnapshotPassesThresholdSeconds(t *testing.T) {
	pool := &poolStub{}
	pool.queryFn = func(_ string, _ []any) (pgx.Rows, error) {
		return &rowsStub{}, nil
	}
	pool.rowFn = func(_ string, _ []any) pgx.Row {
		return rowStub{scan: func(dest ...any) error {
			*(dest[0].(*int64)) = 0
			return nil
		}}
	}
	repo := postgres.NewStatusRepo(pool, fastRetry(1))

	_, err := repo.Snapshot(context.Background(), testThresholds())
	require.NoError(t, err)

	var staleArgs [][]any
	for _, c := range pool.recorded() {
		if strings.Contains(c.sql, "make_interval") {
			staleArgs = append(staleArgs, c.args)
		}
	}
	require.Len(t, staleArgs, 3)
	assert.Equal(t, []any{float64(600)}, staleArgs[0])
	assert.Equal(t, []any{float64(300)}, staleArgs[1])
	assert.Equal(t, []any{float64(240)}, staleArgs[2])
}

func TestStatusRepoSnapshotError(t *testing.T) {
	pool := &poolStub{}
	pool.queryFn = func(_ string, _ []any) (pgx.Rows, error) {
		return nil, errors.New("relation does not exist")
	}
	repo := postgres.NewStatusRepo(pool, fastRetry(1))

	_, err := repo.Snapshot(context.Background(), testThresholds())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "op=status.snapshot:"))
}
