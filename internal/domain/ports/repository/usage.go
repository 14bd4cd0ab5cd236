package repository

import (
	"context"
	"time"

	"github.com/sanskarpan/Latexy/internal/domain/model"
)

// UsageRepository records finished jobs for analytics.
type UsageRepository interface {
	RecordJob(ctx context.Context, ev *model.UsageEvent) error
	SummaryByFamily(ctx context.Context, since time.Time) ([]model.UsageSummary, error)
}
