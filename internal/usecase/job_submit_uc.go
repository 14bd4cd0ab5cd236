// File: internal/usecase/job_submit_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
	"github.com/sanskarpan/Latexy/internal/domain/ports/repository"
	"github.com/sanskarpan/Latexy/internal/infra/logging"
	"github.com/sanskarpan/Latexy/internal/infra/metrics"
)

// Compile-time check
var _ JobSubmitUseCase = (*JobSubmitter)(nil)

type JobSubmitUseCase interface {
	SubmitCompile(ctx context.Context, req CompileRequest) (*SubmitReceipt, error)
	SubmitOptimize(ctx context.Context, req OptimizeRequest) (*SubmitReceipt, error)
	SubmitCombined(ctx context.Context, req OptimizeRequest) (*SubmitReceipt, error)
	SubmitScore(ctx context.Context, req ScoreRequest) (*SubmitReceipt, error)
	SubmitJobDescriptionAnalysis(ctx context.Context, req AnalyzeRequest) (*SubmitReceipt, error)
	SubmitCleanup(ctx context.Context, req CleanupRequest) (*SubmitReceipt, error)
	SubmitNotify(ctx context.Context, req NotifyRequest) (*SubmitReceipt, error)
	SubmitCompletionNotice(ctx context.Context, n CompletionNotice) (*SubmitReceipt, error)
}

// TrialGate limits anonymous free-tier submissions per device.
type TrialGate interface {
	Allow(ctx context.Context, fingerprint string) (bool, error)
}

// SecretSealer encrypts caller secrets before they are queued.
type SecretSealer interface {
	Seal(plaintext string) (string, error)
}

// Caller identifies who submitted a job.
type Caller struct {
	UserID   string
	Plan     string
	DeviceID string
	Metadata map[string]any
}

func (c Caller) plan() string {
	if p := strings.ToLower(strings.TrimSpace(c.Plan)); p != "" {
		return p
	}
	return model.PlanFree
}

func (c Caller) envelope(jobID string) model.Envelope {
	return model.Envelope{
		JobID:    jobID,
		Plan:     c.plan(),
		UserID:   c.UserID,
		DeviceID: c.DeviceID,
		Metadata: c.Metadata,
	}
}

type CompileRequest struct {
	Caller
	Source string
}

type OptimizeRequest struct {
	Caller
	Source            string
	JobDescription    string
	OptimizationLevel string
	Model             string
	APIKey            string
}

type ScoreRequest struct {
	Caller
	Source         string
	JobDescription string
	Industry       string
}

type AnalyzeRequest struct {
	Caller
	JobDescription string
}

type CleanupRequest struct {
	Kind      model.CleanupKind
	MaxAge    time.Duration
	BatchSize int
}

type NotifyRequest struct {
	Caller
	Recipient string
	Subject   string
	Body      string
	Kind      string
}

// CompletionNotice reports the outcome of another job to its owner.
type CompletionNotice struct {
	Recipient string
	JobID     string
	JobType   string
	Success   bool
	Error     string
}

type SubmitReceipt struct {
	JobID            string `json:"job_id"`
	EstimatedSeconds int    `json:"estimated_time"`
}

var optimizationLevels = map[string]bool{"conservative": true, "balanced": true, "aggressive": true}

var baseEstimates = map[model.JobFamily]int{
	model.FamilyCompile:  30,
	model.FamilyOptimize: 60,
	model.FamilyCombined: 90,
	model.FamilyScore:    30,
	model.FamilyAnalyze:  20,
	model.FamilyCleanup:  60,
	model.FamilyNotify:   10,
}

// EstimateSeconds is the rough wait advertised to callers; paid tiers run faster.
func EstimateSeconds(f model.JobFamily, plan string) int {
	est := baseEstimates[f]
	if plan == model.PlanPro || plan == model.PlanBYOK {
		est = int(float64(est) * 0.7)
	}
	return est
}

type JobSubmitter struct {
	queue     adapter.TaskQueue
	jobs      repository.JobRepository
	trial     TrialGate
	sealer    SecretSealer
	maxSource int
	newID     func() string
	log       *zerolog.Logger
}

type SubmitterOption func(*JobSubmitter)

func WithTrialGate(g TrialGate) SubmitterOption { return func(s *JobSubmitter) { s.trial = g } }
func WithSealer(x SecretSealer) SubmitterOption { return func(s *JobSubmitter) { s.sealer = x } }
func WithMaxSourceBytes(n int) SubmitterOption { return func(s *JobSubmitter) { s.maxSource = n } }

// WithIDGenerator replaces the task id source, mainly for tests.
func WithIDGenerator(f func() string) SubmitterOption { return func(s *JobSubmitter) { s.newID = f } }

func NewJobSubmitter(queue adapter.TaskQueue, jobs repository.JobRepository, logger *zerolog.Logger, opts ...SubmitterOption) *JobSubmitter {
	compLog := logger.With().Str("component", "JobSubmitter").Logger()
	s := &JobSubmitter{
		queue:     queue,
		jobs:      jobs,
		maxSource: 1 << 20,
		newID:     uuid.NewString,
		log:       &compLog,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

func (s *JobSubmitter) checkSource(src string) error {
	if strings.TrimSpace(src) == "" {
		return invalid("latex_content is required")
	}
	if s.maxSource > 0 && len(src) > s.maxSource {
		return fmt.Errorf("%w: latex_content exceeds %d bytes", domain.ErrPayloadTooLarge, s.maxSource)
	}
	return nil
}

func (s *JobSubmitter) checkTrial(ctx context.Context, c Caller) error {
	if s.trial == nil || c.UserID != "" || c.plan() != model.PlanFree || c.DeviceID == "" {
		return nil
	}
	ok, err := s.trial.Allow(ctx, c.DeviceID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: free trial limit reached for this device", domain.ErrRateLimited)
	}
	return nil
}

func (s *JobSubmitter) SubmitCompile(ctx context.Context, req CompileRequest) (*SubmitReceipt, error) {
	return s.submit(ctx, model.TaskCompile, req.Caller, func() error {
		return s.checkSource(req.Source)
	}, func(jobID string) (any, error) {
		return model.CompilePayload{Envelope: req.envelope(jobID), Source: req.Source}, nil
	})
}

func (s *JobSubmitter) SubmitOptimize(ctx context.Context, req OptimizeRequest) (*SubmitReceipt, error) {
	return s.submitOptimize(ctx, model.TaskOptimize, req)
}

func (s *JobSubmitter) SubmitCombined(ctx context.Context, req OptimizeRequest) (*SubmitReceipt, error) {
	return s.submitOptimize(ctx, model.TaskCombined, req)
}

func (s *JobSubmitter) submitOptimize(ctx context.Context, task string, req OptimizeRequest) (*SubmitReceipt, error) {
	level := strings.ToLower(strings.TrimSpace(req.OptimizationLevel))
	if level == "" {
		level = "balanced"
	}
	return s.submit(ctx, task, req.Caller, func() error {
		if err := s.checkSource(req.Source); err != nil {
			return err
		}
		if strings.TrimSpace(req.JobDescription) == "" {
			return invalid("job_description is required")
		}
		if !optimizationLevels[level] {
			return invalid("unknown optimization_level %q", req.OptimizationLevel)
		}
		if req.APIKey != "" && s.sealer == nil {
			return fmt.Errorf("%w: bring-your-own-key is not enabled", domain.ErrInvalidArgument)
		}
		return nil
	}, func(jobID string) (any, error) {
		p := model.OptimizePayload{
			Envelope:          req.envelope(jobID),
			Source:            req.Source,
			JobDescription:    req.JobDescription,
			OptimizationLevel: level,
			Model:             req.Model,
		}
		if req.APIKey != "" {
			sealed, err := s.sealer.Seal(req.APIKey)
			if err != nil {
				return nil, fmt.Errorf("seal api key: %w", err)
			}
			p.SealedAPIKey = sealed
		}
		return p, nil
	})
}

func (s *JobSubmitter) SubmitScore(ctx context.Context, req ScoreRequest) (*SubmitReceipt, error) {
	return s.submit(ctx, model.TaskScore, req.Caller, func() error {
		return s.checkSource(req.Source)
	}, func(jobID string) (any, error) {
		return model.ScorePayload{
			Envelope:       req.envelope(jobID),
			Source:         req.Source,
			JobDescription: req.JobDescription,
			Industry:       strings.ToLower(strings.TrimSpace(req.Industry)),
		}, nil
	})
}

func (s *JobSubmitter) SubmitJobDescriptionAnalysis(ctx context.Context, req AnalyzeRequest) (*SubmitReceipt, error) {
	return s.submit(ctx, model.TaskAnalyze, req.Caller, func() error {
		if strings.TrimSpace(req.JobDescription) == "" {
			return invalid("job_description is required")
		}
		return nil
	}, func(jobID string) (any, error) {
		return model.AnalyzePayload{Envelope: req.envelope(jobID), JobDescription: req.JobDescription}, nil
	})
}

func (s *JobSubmitter) SubmitCleanup(ctx context.Context, req CleanupRequest) (*SubmitReceipt, error) {
	var task string
	switch req.Kind {
	case model.CleanupTempFiles:
		task = model.TaskCleanupTemp
	case model.CleanupExpiredJobs:
		task = model.TaskCleanupExpired
	case model.CleanupHealthCheck:
		task = model.TaskHealthCheck
	default:
		metrics.IncJobRejected(string(model.FamilyCleanup), "validation")
		return nil, invalid("unsupported cleanup type %q", req.Kind)
	}
	maxAge := req.MaxAge
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}
	batch := req.BatchSize
	if batch <= 0 {
		batch = 100
	}
	system := Caller{Plan: model.PlanBasic, Metadata: map[string]any{"cleanup_type": string(req.Kind)}}
	return s.submit(ctx, task, system, func() error {
		if maxAge < 0 {
			return invalid("max_age must not be negative")
		}
		return nil
	}, func(jobID string) (any, error) {
		return model.CleanupPayload{Envelope: system.envelope(jobID), Kind: req.Kind, MaxAge: maxAge, BatchSize: batch}, nil
	})
}

func (s *JobSubmitter) SubmitNotify(ctx context.Context, req NotifyRequest) (*SubmitReceipt, error) {
	return s.submit(ctx, model.TaskNotify, req.Caller, func() error {
		switch {
		case strings.TrimSpace(req.Recipient) == "":
			return invalid("recipient is required")
		case strings.TrimSpace(req.Subject) == "":
			return invalid("subject is required")
		case strings.TrimSpace(req.Body) == "":
			return invalid("body is required")
		}
		return nil
	}, func(jobID string) (any, error) {
		kind := req.Kind
		if kind == "" {
			kind = "notification"
		}
		return model.NotifyPayload{
			Envelope:  req.envelope(jobID),
			Recipient: req.Recipient,
			Subject:   req.Subject,
			Body:      req.Body,
			Kind:      kind,
		}, nil
	})
}

func (s *JobSubmitter) SubmitCompletionNotice(ctx context.Context, n CompletionNotice) (*SubmitReceipt, error) {
	subject, body := CompletionMessage(n)
	system := Caller{Plan: model.PlanBasic}
	return s.submit(ctx, model.TaskCompletionEmail, system, func() error {
		if strings.TrimSpace(n.Recipient) == "" || n.JobID == "" {
			return invalid("recipient and job id are required")
		}
		return nil
	}, func(jobID string) (any, error) {
		return model.NotifyPayload{
			Envelope:      system.envelope(jobID),
			Recipient:     n.Recipient,
			Subject:       subject,
			Body:          body,
			Kind:          "completion",
			OriginalJobID: n.JobID,
		}, nil
	})
}

// submit validates, then enqueues exactly one task and records the pending
// job. Nothing is enqueued when validation fails.
func (s *JobSubmitter) submit(
	ctx context.Context,
	task string,
	caller Caller,
	validate func() error,
	build func(jobID string) (any, error),
) (*SubmitReceipt, error) {
	policy, ok := model.PolicyFor(task)
	if !ok {
		return nil, fmt.Errorf("%w: unknown task %q", domain.ErrInvalidArgument, task)
	}
	family := string(policy.Family)

	if err := validate(); err != nil {
		metrics.IncJobRejected(family, rejectReason(err))
		return nil, err
	}
	taskID := s.newID()
	jobID := model.JobID(policy.Family, taskID)
	body, err := build(jobID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", task, err)
	}

	// Trial slots are taken last so a rejected build does not use one up.
	if err := s.checkTrial(ctx, caller); err != nil {
		metrics.IncJobRejected(family, rejectReason(err))
		if errors.Is(err, domain.ErrRateLimited) {
			s.log.Info().Str("device", logging.Redact(caller.DeviceID)).Str("task", task).Msg("trial limit reached")
		}
		return nil, err
	}

	plan := caller.plan()
	priority := model.PriorityForPlan(plan)
	if _, err := s.queue.Enqueue(ctx, model.TaskDescriptor{
		TaskID:   taskID,
		Name:     task,
		Lane:     policy.Lane,
		Priority: priority,
		Payload:  payload,
		MaxRetry: policy.MaxRetry,
	}); err != nil {
		metrics.IncJobRejected(family, "queue")
		return nil, err
	}

	meta := map[string]any{
		"task_id":  taskID,
		"task":     task,
		"plan":     plan,
		"priority": priority,
	}
	if caller.UserID != "" {
		meta["user_id"] = caller.UserID
	}
	if caller.DeviceID != "" {
		meta["device_fingerprint"] = caller.DeviceID
	}
	for k, v := range caller.Metadata {
		if _, taken := meta[k]; !taken {
			meta[k] = v
		}
	}
	// The task is already queued; a missing pending record only widens the
	// lookup-miss window until the executor's first write.
	if err := s.jobs.Create(ctx, jobID, policy.Family, meta); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("pending record not written")
	}

	metrics.IncJobSubmitted(family, model.PriorityClass(priority))
	s.log.Info().
		Str("job_id", jobID).
		Str("task", task).
		Str("lane", string(policy.Lane)).
		Int("priority", priority).
		Msg("job submitted")

	return &SubmitReceipt{JobID: jobID, EstimatedSeconds: EstimateSeconds(policy.Family, plan)}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return "too_large"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		return "validation"
	}
	return "other"
}

// CompletionMessage renders the subject and body of a completion notice.
func CompletionMessage(n CompletionNotice) (subject, body string) {
	jobType := n.JobType
	if jobType == "" {
		jobType = "job"
	}
	if n.Success {
		subject = fmt.Sprintf("Your %s is ready", jobType)
		body = fmt.Sprintf("Good news! Your %s (job %s) completed successfully. You can download the result from your dashboard.", jobType, n.JobID)
		return subject, body
	}
	subject = fmt.Sprintf("Your %s failed", jobType)
	reason := n.Error
	if reason == "" {
		reason = "unknown error"
	}
	body = fmt.Sprintf("Unfortunately your %s (job %s) could not be completed: %s. Please review your document and try again.", jobType, n.JobID, reason)
	return subject, body
}
