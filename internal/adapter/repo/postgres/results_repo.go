package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// ResultRepo persists scraped listings, one row per item id.
type ResultRepo struct {
	Pool  PgxPool
	Retry RetryPolicy
}

// NewResultRepo constructs a ResultRepo with the given pool and retry budget.
func NewResultRepo(p PgxPool, retry RetryPolicy) *ResultRepo {
	return &ResultRepo{Pool: p, Retry: retry}
}

// Upsert inserts or refreshes a result by item_id. Re-scraping the
// same item any number of times converges on the latest payload.
func (r *ResultRepo) Upsert(ctx domain.Context, res domain.Result) error {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "results"),
	)
	chars := res.Characteristics
	if chars == nil {
		chars = map[string]string{}
	}
	payload, err := json.Marshal(chars)
	if err != nil {
		return fmt.Errorf("op=result.upsert: %w", err)
	}
	q := `INSERT INTO results (
    item_id, title, description, characteristics, price, published_at,
    seller_name, seller_profile_url, location_address, location_metro,
    location_region, views_total, status, failure_reason, worker_id, attempts
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (item_id) DO UPDATE SET
    title=EXCLUDED.title, description=EXCLUDED.description,
    characteristics=EXCLUDED.characteristics, price=EXCLUDED.price,
    published_at=EXCLUDED.published_at, seller_name=EXCLUDED.seller_name,
    seller_profile_url=EXCLUDED.seller_profile_url,
    location_address=EXCLUDED.location_address,
    location_metro=EXCLUDED.location_metro,
    location_region=EXCLUDED.location_region,
    views_total=EXCLUDED.views_total, status=EXCLUDED.status,
    failure_reason=EXCLUDED.failure_reason, worker_id=EXCLUDED.worker_id,
    attempts=EXCLUDED.attempts, updated_at=NOW()`
	err = withRetry(ctx, r.Retry, func(ctx context.Context) error {
		_, err := r.Pool.Exec(ctx, q,
			res.ItemID, res.Title, res.Description, payload, res.Price,
			res.PublishedAt, res.SellerName, res.SellerProfileURL,
			res.LocationAddress, res.LocationMetro, res.LocationRegion,
			res.ViewsTotal, res.Status, res.FailureReason, res.WorkerID,
			res.Attempts)
		return err
	})
	if err != nil {
		return fmt.Errorf("op=result.upsert: %w", err)
	}
	return nil
}

// Count returns the total number of stored results.
func (r *ResultRepo) Count(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Count")
	defer span.End()
	q := `SELECT COUNT(*) FROM results`
	var count int64
	err := withRetry(ctx, r.Retry, func(ctx context.Context) error {
		return r.Pool.QueryRow(ctx, q).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("op=result.count: %w", err)
	}
	return count, nil
}
