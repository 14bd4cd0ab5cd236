package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_usage_events (
    id          UUID PRIMARY KEY,
    job_id      TEXT NOT NULL UNIQUE,
    family      TEXT NOT NULL,
    status      TEXT NOT NULL,
    user_id     TEXT NOT NULL DEFAULT '',
    plan        TEXT NOT NULL DEFAULT '',
    device_id   TEXT NOT NULL DEFAULT '',
    provider    TEXT NOT NULL DEFAULT '',
    tokens_used INTEGER NOT NULL DEFAULT 0,
    cost_usd    NUMERIC(12,6) NOT NULL DEFAULT 0,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS job_usage_events_family_created_idx
    ON job_usage_events (family, created_at);
`

// EnsureSchema creates the analytics tables when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
