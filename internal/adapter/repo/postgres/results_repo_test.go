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
	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestResultRepoUpsertFullPayload(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewResultRepo(pool, fastRetry(1))

	res := domain.Result{
		ItemID:           4242,
		Title:            strPtr("Mountain bike"),
		Description:      strPtr("Barely used"),
		Characteristics:  map[string]string{"brand": "Acme"},
		Price:            strPtr("1999.00"),
		PublishedAt:      strPtr("12 August 10:30"),
		SellerName:       strPtr("Ivan"),
		SellerProfileURL: strPtr("https://example.com/seller/1"),
		LocationAddress:  strPtr("Lenina 1"),
		LocationMetro:    strPtr("Center"),
		LocationRegion:   strPtr("Moscow"),
		ViewsTotal:       intPtr(150),
		Status:           domain.ResultSuccess,
		WorkerID:         "host-1",
		Attempts:         1,
	}
	require.NoError(t, repo.Upsert(context.Background(), res))

	calls := pool.recorded()
	require.Len(t, calls, 1)
	sql := calls[0].sql
	assert.Contains(t, sql, "INSERT INTO results")
	assert.Contains(t, sql, "ON CONFLICT (item_id) DO UPDATE SET")
	assert.Contains(t, sql, "updated_at=NOW()")

	args := calls[0].args
	require.Len(t, args, 16)
	assert.Equal(t, int64(4242), args[0])
	assert.Equal(t, strPtr("Mountain bike"), args[1])
	payload, ok := args[3].([]byte)
	require.True(t, ok)
	assert.JSONEq(t, `{"brand":"Acme"}`, string(payload))
	assert.Equal(t, strPtr("1999.00"), args[4])
	assert.Equal(t, intPtr(150), args[11])
	assert.Equal(t, domain.ResultSuccess, args[12])
	assert.Nil(t, args[13])
	assert.Equal(t, "host-1", args[14])
	assert.Equal(t, 1, args[15])
}

func TestResultRepoUpsertNilCharacteristics(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewResultRepo(pool, fastRetry(1))

	res := domain.Result{
		ItemID:   500,
		Status:   domain.ResultUnavailable,
		WorkerID: "host-2",
		Attempts: 1,
	}
	require.NoError(t, repo.Upsert(context.Background(), res))

	calls := pool.recorded()
	require.Len(t, calls, 1)
	payload, ok := calls[0].args[3].([]byte)
	require.True(t, ok)
	assert.Equal(t, "{}", string(payload))
}

func TestResultRepoUpsertError(t *testing.T) {
	pool := &poolStub{execErrs: []error{errors.New("boom")}}
	repo := postgres.NewResultRepo(pool, fastRetry(1))

	err := repo.Upsert(context.Background(), domain.Result{ItemID: 1, Status: domain.ResultSuccess})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "op=result.upsert:"))
}

func TestResultRepoCount(t *testing.T) {
	pool := &poolStub{rowFn: func(_ string, _ []any) pgx.Row {
		return rowStub{scan: func(dest ...any) error {
			*(dest[0].(*int64)) = 7
			return nil
		}}
	}}
	repo := postgres.NewResultRepo(pool, fastRetry(1))

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
