package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
	"github.com/sanskarpan/Latexy/internal/domain/ports/repository"
)

// Compile-time check
var _ JobQueryUseCase = (*JobQuery)(nil)

const (
	CancelMessage   = "Job cancelled by user"
	defaultPageSize = 50
	maxPageSize     = 200
)

type JobQueryUseCase interface {
	Status(ctx context.Context, jobID string) (*JobView, error)
	Result(ctx context.Context, jobID string) (*ResultView, error)
	Cancel(ctx context.Context, jobID string) (*CancelOutcome, error)
	List(ctx context.Context, f ListFilter) (*JobList, error)
	Health(ctx context.Context) *StoreHealth
	Artifact(ctx context.Context, jobID string, kind adapter.ArtifactKind, v Viewer) (*adapter.Artifact, error)
	Usage(ctx context.Context, since time.Time) (*UsageReport, error)
}

// JobView merges the status record with the latest progress.
type JobView struct {
	JobID       string         `json:"job_id"`
	Status      string         `json:"status"`
	Family      string         `json:"family,omitempty"`
	Progress    *int           `json:"progress,omitempty"`
	Message     string         `json:"message,omitempty"`
	Stage       string         `json:"stage,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ResultView struct {
	JobID       string          `json:"job_id"`
	Success     bool            `json:"success"`
	Result      model.JobResult `json:"result"`
	Error       *string         `json:"error"`
	CompletedAt *time.Time      `json:"completed_at"`
}

type CancelOutcome struct {
	JobID     string `json:"job_id"`
	Cancelled bool   `json:"cancelled"`
	Status    string `json:"status,omitempty"`
}

type ListFilter struct {
	Status model.JobStatus
	Limit  int
	Offset int
}

type JobList struct {
	Jobs           []JobView `json:"jobs"`
	TotalCount     int       `json:"total_count"`
	ActiveCount    int       `json:"active_count"`
	CompletedCount int       `json:"completed_count"`
	FailedCount    int       `json:"failed_count"`
}

type StoreHealth struct {
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
	ActiveJobs int    `json:"active_jobs_count"`
}

// Viewer is who asks for a job's files.
type Viewer struct {
	UserID string
	Admin  bool
}

type UsageReport struct {
	Since    time.Time            `json:"since"`
	Families []model.UsageSummary `json:"families"`
}

type JobQuery struct {
	jobs      repository.JobRepository
	queue     adapter.TaskQueue
	artifacts adapter.ArtifactStore
	usage     repository.UsageRepository
	log       *zerolog.Logger
}

type QueryOption func(*JobQuery)

func WithArtifacts(a adapter.ArtifactStore) QueryOption { return func(q *JobQuery) { q.artifacts = a } }
func WithUsageReports(u repository.UsageRepository) QueryOption {
	return func(q *JobQuery) { q.usage = u }
}

func NewJobQuery(jobs repository.JobRepository, queue adapter.TaskQueue, logger *zerolog.Logger, opts ...QueryOption) *JobQuery {
	compLog := logger.With().Str("component", "JobQuery").Logger()
	q := &JobQuery{jobs: jobs, queue: queue, log: &compLog}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *JobQuery) Status(ctx context.Context, jobID string) (*JobView, error) {
	st, err := q.jobs.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return q.view(ctx, st), nil
}

func (q *JobQuery) view(ctx context.Context, st *model.JobStatusRecord) *JobView {
	v := &JobView{
		JobID:       st.JobID,
		Status:      string(st.Status),
		Family:      string(st.Family),
		Message:     st.Message,
		Stage:       st.Stage,
		Error:       st.Error,
		CompletedAt: st.CompletedAt,
		Metadata:    st.Metadata,
	}
	if !st.CreatedAt.IsZero() {
		v.CreatedAt = &st.CreatedAt
	}
	if !st.UpdatedAt.IsZero() {
		v.UpdatedAt = &st.UpdatedAt
	}
	if p, err := q.jobs.GetProgress(ctx, st.JobID); err == nil {
		v.Progress = &p.Progress
		if p.Message != "" {
			v.Message = p.Message
		}
	}
	return v
}

func (q *JobQuery) Result(ctx context.Context, jobID string) (*ResultView, error) {
	res, err := q.jobs.GetResult(ctx, jobID)
	if err != nil {
		return nil, err
	}
	out := &ResultView{JobID: jobID, Success: res.Success()}
	if out.Success {
		out.Result = res
	} else {
		msg := res.Error()
		out.Error = &msg
	}
	if st, err := q.jobs.GetStatus(ctx, jobID); err == nil {
		out.CompletedAt = st.CompletedAt
	}
	return out, nil
}

// Cancel records a cancelled status when the job is still pending or
// processing. Running executors notice it at their next checkpoint. Jobs that
// are unknown or already finished are reported as not cancelled.
func (q *JobQuery) Cancel(ctx context.Context, jobID string) (*CancelOutcome, error) {
	cur, err := q.jobs.GetStatus(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return &CancelOutcome{JobID: jobID}, nil
	}
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return &CancelOutcome{JobID: jobID, Status: string(cur.Status)}, nil
	}

	now := time.Now().UTC()
	rec, err := q.jobs.SetStatus(ctx, jobID, model.JobStatusCancelled, model.StatusUpdate{
		Message:     CancelMessage,
		CompletedAt: &now,
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		// finished between the read and the write
		return &CancelOutcome{JobID: jobID}, nil
	}
	if err != nil {
		return nil, err
	}

	if fam, taskID, ok := model.TaskIDOf(jobID); ok && q.queue != nil {
		if lane, ok := model.LaneOf(fam); ok {
			if qerr := q.queue.Cancel(ctx, lane, taskID); qerr != nil {
				q.log.Warn().Err(qerr).Str("job_id", jobID).Msg("queue removal failed")
			}
		}
	}
	q.log.Info().Str("job_id", jobID).Msg("job cancelled")
	return &CancelOutcome{JobID: jobID, Cancelled: true, Status: string(rec.Status)}, nil
}

func (q *JobQuery) List(ctx context.Context, f ListFilter) (*JobList, error) {
	ids, err := q.jobs.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	out := &JobList{Jobs: []JobView{}, TotalCount: len(ids)}
	if offset >= len(ids) {
		return out, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	for _, id := range ids[offset:end] {
		st, err := q.jobs.GetStatus(ctx, id)
		if err != nil {
			// expired between scan and read
			continue
		}
		if f.Status != "" && st.Status != f.Status {
			continue
		}
		switch st.Status {
		case model.JobStatusPending, model.JobStatusProcessing:
			out.ActiveCount++
		case model.JobStatusCompleted:
			out.CompletedCount++
		case model.JobStatusFailed:
			out.FailedCount++
		}
		out.Jobs = append(out.Jobs, *q.view(ctx, st))
	}
	return out, nil
}

func (q *JobQuery) Health(ctx context.Context) *StoreHealth {
	h := &StoreHealth{Healthy: true}
	if err := q.jobs.Ping(ctx); err != nil {
		h.Healthy = false
		h.Error = err.Error()
		return h
	}
	ids, err := q.jobs.ListActive(ctx)
	if err != nil {
		h.Healthy = false
		h.Error = err.Error()
		return h
	}
	h.ActiveJobs = len(ids)
	return h
}

// Artifact opens the PDF or log a compile job left behind; combined jobs
// resolve to their nested compile job. A job submitted by a signed-in user
// is readable by that user and by admins only. The PDF is only served once
// the job completed.
func (q *JobQuery) Artifact(ctx context.Context, jobID string, kind adapter.ArtifactKind, v Viewer) (*adapter.Artifact, error) {
	if q.artifacts == nil {
		return nil, fmt.Errorf("%w: job files are not served here", domain.ErrNotFound)
	}
	st, err := q.jobs.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if owner, _ := st.Metadata["user_id"].(string); owner != "" && owner != v.UserID && !v.Admin {
		return nil, fmt.Errorf("%w: job belongs to another user", domain.ErrForbidden)
	}

	fam := st.Family
	if fam == "" {
		fam, _ = model.FamilyOf(jobID)
	}
	dir := jobID
	switch fam {
	case model.FamilyCompile:
	case model.FamilyCombined:
		dir = jobID + "_compiled"
	default:
		return nil, fmt.Errorf("%w: %s jobs produce no files", domain.ErrNotFound, fam)
	}
	if kind == adapter.ArtifactPDF && st.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrNotFound, st.Status)
	}
	return q.artifacts.OpenArtifact(dir, kind)
}

// Usage summarizes recorded jobs per family since the cutoff.
func (q *JobQuery) Usage(ctx context.Context, since time.Time) (*UsageReport, error) {
	if q.usage == nil {
		return nil, fmt.Errorf("%w: usage analytics disabled", domain.ErrNotFound)
	}
	sum, err := q.usage.SummaryByFamily(ctx, since)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		sum = []model.UsageSummary{}
	}
	return &UsageReport{Since: since, Families: sum}, nil
}
