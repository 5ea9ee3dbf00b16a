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

// ProxyRepo leases and retires proxies using a minimal pgx pool.
type ProxyRepo struct {
	Pool  PgxPool
	Retry RetryPolicy
}

// NewProxyRepo constructs a ProxyRepo with the given pool and retry budget.
func NewProxyRepo(p PgxPool, retry RetryPolicy) *ProxyRepo { return &ProxyRepo{Pool: p, Retry: retry} }

// Acquire leases the least-used available proxy so wear spreads evenly
// across the pool. Returns (nil, nil) when every proxy is locked or
// blocked.
func (r *ProxyRepo) Acquire(ctx domain.Context, workerID string) (*domain.Proxy, error) {
	tracer := otel.Tracer("repo.proxies")
	ctx, span := tracer.Start(ctx, "proxies.Acquire")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "proxies"),
	)
	q := `UPDATE proxies
SET status='locked', locked_by=$1, locked_at=NOW(), uses_count=uses_count+1
WHERE id = (
    SELECT id FROM proxies
    WHERE status='available'
    ORDER BY uses_count ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, proxy`
	var p *domain.Proxy
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		var got domain.Proxy
		if err := r.Pool.QueryRow(ctx, q, workerID).Scan(&got.ID, &got.Proxy); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				p = nil
				return nil
			}
			return err
		}
		got.Status = domain.ProxyLocked
		got.LockedBy = &workerID
		p = &got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=proxy.acquire: %w", err)
	}
	return p, nil
}

// Release frees a locked proxy and stamps last_used_at. The status
// guard makes it a no-op for available and blocked rows, so calling it
// after MarkBlocked cannot resurrect a retired proxy.
func (r *ProxyRepo) Release(ctx domain.Context, proxy string) error {
	tracer := otel.Tracer("repo.proxies")
	ctx, span := tracer.Start(ctx, "proxies.Release")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "proxies"),
	)
	q := `UPDATE proxies
SET status='available', locked_by=NULL, locked_at=NULL, last_used_at=NOW()
WHERE proxy=$1 AND status='locked'`
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		_, err := r.Pool.Exec(ctx, q, proxy)
		return err
	})
	if err != nil {
		return fmt.Errorf("op=proxy.release: %w", err)
	}
	return nil
}

// MarkBlocked retires a proxy for good: blocked is terminal, the bump
// on blocks_count keeps the audit trail, and the lease fields clear so
// the row never looks held.
func (r *ProxyRepo) MarkBlocked(ctx domain.Context, proxy string) error {
	tracer := otel.Tracer("repo.proxies")
	ctx, span := tracer.Start(ctx, "proxies.MarkBlocked")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "proxies"),
	)
	q := `UPDATE proxies
SET status='blocked', blocks_count=blocks_count+1, locked_by=NULL, locked_at=NULL
WHERE proxy=$1`
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		_, err := r.Pool.Exec(ctx, q, proxy)
		return err
	})
	if err != nil {
		return fmt.Errorf("op=proxy.mark_blocked: %w", err)
	}
	return nil
}

// Insert adds proxies, silently skipping ones already present.
func (r *ProxyRepo) Insert(ctx domain.Context, proxies []string) error {
	tracer := otel.Tracer("repo.proxies")
	ctx, span := tracer.Start(ctx, "proxies.Insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "proxies"),
	)
	q := `INSERT INTO proxies (proxy) VALUES ($1) ON CONFLICT (proxy) DO NOTHING`
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		for _, p := range proxies {
			if _, err := r.Pool.Exec(ctx, q, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("op=proxy.insert: %w", err)
	}
	return nil
}

// Count returns the total number of proxies.
func (r *ProxyRepo) Count(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.proxies")
	ctx, span := tracer.Start(ctx, "proxies.Count")
	defer span.End()
	q := `SELECT COUNT(*) FROM proxies`
	var count int64
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		return r.Pool.QueryRow(ctx, q).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("op=proxy.count: %w", err)
	}
	return count, nil
}

// DeleteAll wipes the proxies table and reports how many rows went.
func (r *ProxyRepo) DeleteAll(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.proxies")
	ctx, span := tracer.Start(ctx, "proxies.DeleteAll")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "proxies"),
	)
	var deleted int64
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		tag, err := r.Pool.Exec(ctx, `DELETE FROM proxies`)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("op=proxy.delete_all: %w", err)
	}
	return deleted, nil
}
