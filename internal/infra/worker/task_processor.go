package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/infra/logging"
	"github.com/sanskarpan/Latexy/internal/usecase"
)

// JobRunner executes job bodies; *usecase.JobExecutor implements it.
type JobRunner interface {
	Compile(ctx context.Context, p model.CompilePayload, at model.Attempt) (model.JobResult, error)
	Combined(ctx context.Context, p model.OptimizePayload, at model.Attempt) (model.JobResult, error)
	Optimize(ctx context.Context, p model.OptimizePayload, at model.Attempt) (model.JobResult, error)
	Score(ctx context.Context, p model.ScorePayload, at model.Attempt) (model.JobResult, error)
	AnalyzeJobDescription(ctx context.Context, p model.AnalyzePayload, at model.Attempt) (model.JobResult, error)
	Cleanup(ctx context.Context, p model.CleanupPayload, at model.Attempt) (model.JobResult, error)
	Notify(ctx context.Context, p model.NotifyPayload, at model.Attempt) (model.JobResult, error)
}

// CompletionNotifier queues the "your job finished" message.
type CompletionNotifier interface {
	SubmitCompletionNotice(ctx context.Context, n usecase.CompletionNotice) (*usecase.SubmitReceipt, error)
}

// NotifyMetadataKey is the job metadata field holding the address to notify on completion.
const NotifyMetadataKey = "notify_email"

type TaskProcessor struct {
	runner  JobRunner
	notices CompletionNotifier
	log     *zerolog.Logger
}

func NewTaskProcessor(runner JobRunner, notices CompletionNotifier, logger *zerolog.Logger) *TaskProcessor {
	compLog := logger.With().Str("component", "TaskProcessor").Logger()
	return &TaskProcessor{runner: runner, notices: notices, log: &compLog}
}

// Mux wires every task name to its handler.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(p.logTask)
	mux.Handle(model.TaskCompile, handle(p, p.runner.Compile))
	mux.Handle(model.TaskCombined, handle(p, p.runner.Combined))
	mux.Handle(model.TaskOptimize, handle(p, p.runner.Optimize))
	mux.Handle(model.TaskScore, handle(p, p.runner.Score))
	mux.Handle(model.TaskAnalyze, handle(p, p.runner.AnalyzeJobDescription))
	mux.Handle(model.TaskCleanupTemp, handle(p, p.runner.Cleanup))
	mux.Handle(model.TaskCleanupExpired, handle(p, p.runner.Cleanup))
	mux.Handle(model.TaskHealthCheck, handle(p, p.runner.Cleanup))
	mux.Handle(model.TaskNotify, handle(p, p.runner.Notify))
	mux.Handle(model.TaskCompletionEmail, handle(p, p.runner.Notify))
	return mux
}

type header interface {
	Header() model.Envelope
}

func handle[P header](p *TaskProcessor, run func(context.Context, P, model.Attempt) (model.JobResult, error)) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var payload P
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		env := payload.Header()
		at := AttemptOf(ctx)
		ctx = logging.WithJobID(ctx, env.JobID)
		if env.UserID != "" {
			ctx = logging.WithUserID(ctx, env.UserID)
		}

		result, err := run(ctx, payload, at)
		if terminal(result, err, at) {
			p.notifyCompletion(ctx, t.Type(), env, result)
		}
		if err != nil && domain.IsPermanent(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	})
}

// AttemptOf reads the retry counters asynq stores on the handler context.
func AttemptOf(ctx context.Context) model.Attempt {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return model.Attempt{Retry: retried, MaxRetry: maxRetry}
}

func terminal(result model.JobResult, err error, at model.Attempt) bool {
	if result == nil {
		return false
	}
	return err == nil || domain.IsPermanent(err) || at.Final()
}

func (p *TaskProcessor) notifyCompletion(ctx context.Context, task string, env model.Envelope, result model.JobResult) {
	if p.notices == nil {
		return
	}
	policy, ok := model.PolicyFor(task)
	if !ok || policy.Family == model.FamilyNotify || policy.Family == model.FamilyCleanup {
		return
	}
	recipient, _ := env.Metadata[NotifyMetadataKey].(string)
	if recipient == "" {
		return
	}
	_, err := p.notices.SubmitCompletionNotice(ctx, usecase.CompletionNotice{
		Recipient: recipient,
		JobID:     env.JobID,
		JobType:   jobTypeLabel(policy.Family),
		Success:   result.Success(),
		Error:     result.Error(),
	})
	if err != nil {
		logging.With(ctx, p.log).Warn().Err(err).Msg("completion notice not queued")
	}
}

func jobTypeLabel(f model.JobFamily) string {
	switch f {
	case model.FamilyCompile:
		return "resume compilation"
	case model.FamilyOptimize:
		return "resume optimization"
	case model.FamilyCombined:
		return "optimized resume"
	case model.FamilyScore:
		return "ATS score"
	case model.FamilyAnalyze:
		return "job description analysis"
	}
	return "job"
}

func (p *TaskProcessor) logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		id, _ := asynq.GetTaskID(ctx)
		queue, _ := asynq.GetQueueName(ctx)
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		ev := p.log.Debug()
		if err != nil {
			ev = p.log.Warn().Err(err).Bool("skip_retry", errors.Is(err, asynq.SkipRetry))
		}
		ev.Str("task", t.Type()).
			Str("task_id", id).
			Str("queue", queue).
			Dur("duration_ms", time.Since(start)).
			Msg("task handled")
		return err
	})
}
