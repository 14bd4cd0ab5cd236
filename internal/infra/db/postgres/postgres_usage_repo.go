package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*usageRepo)(nil)

const uniqueViolation = "23505"

type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type usageRepo struct {
	db queryer
}

func NewUsageRepo(pool *pgxpool.Pool) repository.UsageRepository {
	return &usageRepo{db: pool}
}

// RecordJob stores one finished job. Recording the same job twice is a no-op
// so a retried worker cannot double count.
func (r *usageRepo) RecordJob(ctx context.Context, ev *model.UsageEvent) error {
	if ev == nil || ev.JobID == "" {
		return domain.ErrInvalidArgument
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO job_usage_events
    (id, job_id, family, status, user_id, plan, device_id, provider, tokens_used, cost_usd, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, q,
		ev.ID, ev.JobID, string(ev.Family), string(ev.Status), ev.UserID, ev.Plan, ev.DeviceID,
		ev.Provider, ev.TokensUsed, ev.CostUSD, ev.Duration.Milliseconds(), ev.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil
		}
		return mapErr("record usage", err)
	}
	return nil
}

func (r *usageRepo) SummaryByFamily(ctx context.Context, since time.Time) ([]model.UsageSummary, error) {
	const q = `
SELECT family,
       COUNT(*),
       COUNT(*) FILTER (WHERE status = 'completed'),
       COUNT(*) FILTER (WHERE status = 'failed'),
       COALESCE(SUM(tokens_used), 0),
       COALESCE(SUM(cost_usd), 0)::float8,
       COALESCE(AVG(duration_ms), 0)::float8 / 1000
FROM job_usage_events
WHERE created_at >= $1
GROUP BY family
ORDER BY family`

	rows, err := r.db.Query(ctx, q, since)
	if err != nil {
		return nil, mapErr("usage summary", err)
	}
	defer rows.Close()

	var out []model.UsageSummary
	for rows.Next() {
		var s model.UsageSummary
		var family string
		if err := rows.Scan(&family, &s.Total, &s.Completed, &s.Failed, &s.TokensUsed, &s.CostUSD, &s.AvgDuration); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		s.Family = model.JobFamily(family)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("usage summary", err)
	}
	return out, nil
}

// mapErr keeps server-side SQL errors as they are and marks everything else
// (dial, timeout, closed pool) as the store being unavailable.
func mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %s (%s): %w", op, pgErr.Message, pgErr.Code, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}
