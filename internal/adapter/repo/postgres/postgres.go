// Package postgres provides the PostgreSQL adapters for the fleet
// tables. PostgreSQL is the only coordination substrate: leases are
// taken with single self-contained UPDATE statements over FOR UPDATE
// SKIP LOCKED subselects, so no inter-statement transactions and no
// advisory locks are needed. Every operation runs inside a fixed-delay
// retry budget before its error surfaces to the caller.
package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// RetryPolicy is the store-wide budget for transient failures: a fixed
// Delay between tries, Attempts tries in total.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy mirrors the DB_RETRY_ATTEMPTS/RETRY_DELAY defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Delay: 10 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// withRetry runs fn under the policy, logging each retry. The last
// error surfaces unwrapped so callers add their op= prefix.
func withRetry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	p = p.normalized()
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.Attempts-1)),
		ctx,
	)
	return backoff.RetryNotify(
		func() error { return fn(ctx) },
		bo,
		func(err error, wait time.Duration) {
			slog.Warn("db_retry", slog.Any("error", err), slog.Duration("wait", wait))
		},
	)
}
