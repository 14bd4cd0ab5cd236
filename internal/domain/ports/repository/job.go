package repository

import (
	"context"

	"github.com/sanskarpan/Latexy/internal/domain/model"
)

// JobRepository is the single source of truth for job state.
// Lookups of unknown or expired jobs return domain.ErrNotFound; connection
// problems return domain.ErrStoreUnavailable.
type JobRepository interface {
	// Create writes a pending record only when none exists yet.
	Create(ctx context.Context, jobID string, family model.JobFamily, metadata map[string]any) error
	SetStatus(ctx context.Context, jobID string, status model.JobStatus, u model.StatusUpdate) (*model.JobStatusRecord, error)
	GetStatus(ctx context.Context, jobID string) (*model.JobStatusRecord, error)
	SetProgress(ctx context.Context, jobID string, percent int, message string) error
	GetProgress(ctx context.Context, jobID string) (*model.JobProgress, error)
	SetResult(ctx context.Context, jobID string, result model.JobResult) error
	GetResult(ctx context.Context, jobID string) (model.JobResult, error)
	Delete(ctx context.Context, jobID string) error
	ListActive(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}
