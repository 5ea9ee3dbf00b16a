package postgres

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
)

// schemaStatements is the full DDL for the fleet tables. Everything is
// IF NOT EXISTS so initdb can run against a live database at any time.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
    id              BIGSERIAL PRIMARY KEY,
    item_id         BIGINT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    attempts        INT NOT NULL DEFAULT 0,
    max_attempts    INT NOT NULL DEFAULT 5,
    worker_id       TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_attempt_at TIMESTAMPTZ,
    completed_at    TIMESTAMPTZ
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_item_id ON tasks (item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status_created_at ON tasks (status, created_at)`,

	`CREATE TABLE IF NOT EXISTS proxies (
    id           BIGSERIAL PRIMARY KEY,
    proxy        TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'available',
    locked_by    TEXT,
    locked_at    TIMESTAMPTZ,
    last_used_at TIMESTAMPTZ,
    uses_count   BIGINT NOT NULL DEFAULT 0,
    blocks_count BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_proxies_proxy ON proxies (proxy)`,
	`CREATE INDEX IF NOT EXISTS idx_proxies_status_uses ON proxies (status, uses_count)`,

	`CREATE TABLE IF NOT EXISTS workers (
    worker_id       TEXT PRIMARY KEY,
    status          TEXT NOT NULL DEFAULT 'active',
    last_heartbeat  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    tasks_processed BIGINT NOT NULL DEFAULT 0,
    tasks_failed    BIGINT NOT NULL DEFAULT 0,
    started_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_workers_last_heartbeat ON workers (last_heartbeat)`,

	`CREATE TABLE IF NOT EXISTS results (
    id                 BIGSERIAL PRIMARY KEY,
    item_id            BIGINT NOT NULL,
    title              TEXT,
    description        TEXT,
    characteristics    JSONB,
    price              NUMERIC(12,2),
    published_at       TEXT,
    seller_name        TEXT,
    seller_profile_url TEXT,
    location_address   TEXT,
    location_metro     TEXT,
    location_region    TEXT,
    views_total        INT,
    status             TEXT NOT NULL,
    failure_reason     TEXT,
    worker_id          TEXT,
    attempts           INT,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_results_item_id ON results (item_id)`,
}

// EnsureSchema creates the four fleet tables and their indexes if they
// do not exist yet. Safe to run repeatedly.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	tracer := otel.Tracer("repo.schema")
	ctx, span := tracer.Start(ctx, "schema.EnsureSchema")
	defer span.End()
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=schema.ensure: %w", err)
		}
	}
	return nil
}
