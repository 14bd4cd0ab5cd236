// File: internal/usecase/job_executor.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
	"github.com/sanskarpan/Latexy/internal/domain/ports/repository"
	"github.com/sanskarpan/Latexy/internal/infra/metrics"
)

// SecretOpener decrypts secrets sealed by the submitter.
type SecretOpener interface {
	Open(sealed string) (string, error)
}

type ExecutorConfig struct {
	CompileTimeout time.Duration
	LLMTimeout     time.Duration
	ScoreTimeout   time.Duration
	NotifyTimeout  time.Duration
	// TooManyActive flags the health check above this many live jobs.
	TooManyActive int
}

func (c *ExecutorConfig) normalize() {
	if c.CompileTimeout <= 0 {
		c.CompileTimeout = 30 * time.Second
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 120 * time.Second
	}
	if c.ScoreTimeout <= 0 {
		c.ScoreTimeout = 30 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 15 * time.Second
	}
	if c.TooManyActive <= 0 {
		c.TooManyActive = 1000
	}
}

// ExecutorDeps groups the collaborators; any of them may be nil when the
// worker does not serve that family.
type ExecutorDeps struct {
	Jobs      repository.JobRepository
	Compiler  adapter.Compiler
	Workspace adapter.Workspace
	Optimizer adapter.ResumeOptimizer
	Scorer    adapter.Scorer
	Notifier  adapter.Notifier
	Usage     repository.UsageRepository
	Secrets   SecretOpener
}

// JobExecutor runs job bodies on worker processes and narrates their
// progress through the job repository.
type JobExecutor struct {
	ExecutorDeps
	cfg ExecutorConfig
	now func() time.Time
	log *zerolog.Logger
}

func NewJobExecutor(deps ExecutorDeps, cfg ExecutorConfig, logger *zerolog.Logger) *JobExecutor {
	cfg.normalize()
	compLog := logger.With().Str("component", "JobExecutor").Logger()
	return &JobExecutor{ExecutorDeps: deps, cfg: cfg, now: time.Now, log: &compLog}
}

// errSkip means the job is no longer ours to run (cancelled or already finished).
var errSkip = errors.New("job skipped")

type jobRun struct {
	e       *JobExecutor
	id      string
	family  model.JobFamily
	env     model.Envelope
	attempt model.Attempt
	started time.Time
	log     zerolog.Logger
}

func (e *JobExecutor) begin(ctx context.Context, env model.Envelope, family model.JobFamily, at model.Attempt, stage string) (*jobRun, error) {
	if env.JobID == "" {
		return nil, domain.Permanent(invalid("job id missing from payload"))
	}
	now := e.now()
	meta := make(map[string]any, len(env.Metadata)+3)
	for k, v := range env.Metadata {
		meta[k] = v
	}
	if env.Plan != "" {
		meta["plan"] = env.Plan
	}
	if env.UserID != "" {
		meta["user_id"] = env.UserID
	}

	_, err := e.Jobs.SetStatus(ctx, env.JobID, model.JobStatusProcessing, model.StatusUpdate{
		Message:    "Job started",
		ClearError: true,
		Stage:      stage,
		Attempt:    at.Retry + 1,
		Metadata:   meta,
		StartedAt:  &now,
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		e.log.Info().Str("job_id", env.JobID).Msg("job no longer runnable, skipping")
		metrics.IncJobFinished(string(family), "skipped")
		return nil, errSkip
	}
	if err != nil {
		return nil, err
	}
	return &jobRun{
		e:       e,
		id:      env.JobID,
		family:  family,
		env:     env,
		attempt: at,
		started: now,
		log:     e.log.With().Str("job_id", env.JobID).Str("family", string(family)).Int("attempt", at.Retry+1).Logger(),
	}, nil
}

// checkpoint stops the run when the job was cancelled, otherwise records progress.
func (r *jobRun) checkpoint(ctx context.Context, pct int, msg string) error {
	st, err := r.e.Jobs.GetStatus(ctx, r.id)
	if err == nil && st.Status == model.JobStatusCancelled {
		return domain.ErrJobCancelled
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return r.e.Jobs.SetProgress(ctx, r.id, pct, msg)
}

func (r *jobRun) stage(ctx context.Context, stage, msg string) error {
	_, err := r.e.Jobs.SetStatus(ctx, r.id, model.JobStatusProcessing, model.StatusUpdate{Stage: stage, Message: msg})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return domain.ErrJobCancelled
	}
	return err
}

// complete writes the terminal status first so a concurrent cancel wins
// cleanly and no result is left behind on a cancelled job.
func (r *jobRun) complete(ctx context.Context, result model.JobResult, msg string) (model.JobResult, error) {
	done := r.e.now()
	if _, err := r.e.Jobs.SetStatus(ctx, r.id, model.JobStatusCompleted, model.StatusUpdate{
		Message:     msg,
		ClearError:  true,
		CompletedAt: &done,
	}); err != nil {
		return r.interrupted(err)
	}
	if err := r.e.Jobs.SetResult(ctx, r.id, result); err != nil {
		return nil, err
	}
	if err := r.e.Jobs.SetProgress(ctx, r.id, 100, msg); err != nil {
		r.log.Warn().Err(err).Msg("final progress not written")
	}
	r.finish(ctx, model.JobStatusCompleted, result)
	return result, nil
}

// fail either hands the error back for a retry, keeping the job in
// processing, or records the terminal failure and its result.
func (r *jobRun) fail(ctx context.Context, cause error, result model.JobResult) (model.JobResult, error) {
	if errors.Is(cause, domain.ErrJobCancelled) {
		return r.interrupted(cause)
	}
	if result == nil {
		result = model.FailureResult(cause)
	}
	if _, ok := result["error"]; !ok {
		result["error"] = cause.Error()
	}
	result["success"] = false

	if !domain.IsPermanent(cause) && !r.attempt.Final() {
		_, err := r.e.Jobs.SetStatus(ctx, r.id, model.JobStatusProcessing, model.StatusUpdate{
			Message: "Retrying after error",
			Error:   cause.Error(),
			Metadata: map[string]any{
				"last_error": cause.Error(),
				"retries":    r.attempt.Retry + 1,
			},
		})
		if err != nil {
			return r.interrupted(err)
		}
		metrics.IncJobRetry(string(r.family))
		r.log.Warn().Err(cause).Int("max_retry", r.attempt.MaxRetry).Msg("job attempt failed, will retry")
		return result, cause
	}

	done := r.e.now()
	if _, err := r.e.Jobs.SetStatus(ctx, r.id, model.JobStatusFailed, model.StatusUpdate{
		Message:     "Job failed",
		Error:       cause.Error(),
		CompletedAt: &done,
	}); err != nil {
		return r.interrupted(err)
	}
	if err := r.e.Jobs.SetResult(ctx, r.id, result); err != nil {
		return nil, err
	}
	r.finish(ctx, model.JobStatusFailed, result)
	return result, cause
}

// interrupted maps a lost race with cancellation to a quiet stop; anything
// else is a store error for the queue to retry.
func (r *jobRun) interrupted(err error) (model.JobResult, error) {
	if errors.Is(err, domain.ErrJobCancelled) || errors.Is(err, domain.ErrInvalidTransition) {
		r.log.Info().Msg("job cancelled, stopping at checkpoint")
		metrics.IncJobFinished(string(r.family), string(model.JobStatusCancelled))
		return nil, nil
	}
	return nil, err
}

func (r *jobRun) finish(ctx context.Context, status model.JobStatus, result model.JobResult) {
	elapsed := r.e.now().Sub(r.started)
	metrics.IncJobFinished(string(r.family), string(status))
	metrics.ObserveJobDuration(string(r.family), elapsed)

	ev := r.log.Info()
	if status == model.JobStatusFailed {
		ev = r.log.Error().Str("error", result.Error())
	}
	ev.Dur("duration_ms", elapsed).Str("status", string(status)).Msg("job finished")

	r.e.recordUsage(ctx, r, status, result, elapsed)
}

func (e *JobExecutor) recordUsage(ctx context.Context, r *jobRun, status model.JobStatus, result model.JobResult, elapsed time.Duration) {
	if e.Usage == nil {
		return
	}
	switch r.family {
	case model.FamilyCleanup, model.FamilyNotify:
		return
	}
	ev := &model.UsageEvent{
		JobID:     r.id,
		Family:    r.family,
		Status:    status,
		UserID:    r.env.UserID,
		Plan:      r.env.Plan,
		DeviceID:  r.env.DeviceID,
		Duration:  elapsed,
		CreatedAt: e.now(),
	}
	if v, ok := result["provider"].(string); ok {
		ev.Provider = v
	}
	if v, ok := result["tokens_used"].(int); ok {
		ev.TokensUsed = v
	}
	if v, ok := result["cost"].(float64); ok {
		ev.CostUSD = v
	}
	if err := e.Usage.RecordJob(ctx, ev); err != nil {
		metrics.IncUsageWriteFailure()
		r.log.Warn().Err(err).Msg("usage event not recorded")
	}
}

// finishRun converts the executor outcome into what the queue should see.
func finishRun(result model.JobResult, err error) (model.JobResult, error) {
	if errors.Is(err, errSkip) {
		return nil, nil
	}
	return result, err
}

// ValidateLatexSource checks the minimal document skeleton.
func ValidateLatexSource(src string) error {
	if strings.TrimSpace(src) == "" {
		return domain.Permanent(invalid("LaTeX content is empty"))
	}
	for _, marker := range []string{`\documentclass`, `\begin{document}`, `\end{document}`} {
		if !strings.Contains(src, marker) {
			return domain.Permanent(invalid("missing %s", marker))
		}
	}
	return nil
}

func timeoutError(what string, d time.Duration) error {
	return fmt.Errorf("%w: %s timeout after %d seconds", domain.ErrTimeout, what, int(d.Seconds()))
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, domain.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
}
