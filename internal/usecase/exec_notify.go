package usecase

import (
	"context"
	"errors"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

// Notify delivers a message. Only the notify job itself records the outcome;
// the job a notice reports on is never touched.
func (e *JobExecutor) Notify(ctx context.Context, p model.NotifyPayload, at model.Attempt) (model.JobResult, error) {
	run, err := e.begin(ctx, p.Envelope, model.FamilyNotify, at, "")
	if err != nil {
		return finishRun(nil, err)
	}
	if err := run.checkpoint(ctx, 20, "Preparing notification"); err != nil {
		return finishRun(run.interrupted(err))
	}
	base := model.JobResult{
		"recipient":       p.Recipient,
		"kind":            p.Kind,
		"original_job_id": p.OriginalJobID,
	}
	if p.Recipient == "" || p.Body == "" {
		return finishRun(run.fail(ctx, domain.Permanent(invalid("recipient and body are required")), base))
	}
	if e.Notifier == nil {
		return finishRun(run.fail(ctx, domain.Permanent(errors.New("no notification channel configured")), base))
	}
	base["channel"] = e.Notifier.Name()

	if err := run.checkpoint(ctx, 50, "Sending notification"); err != nil {
		return finishRun(run.interrupted(err))
	}
	nctx, cancel := context.WithTimeout(ctx, e.cfg.NotifyTimeout)
	err = e.Notifier.Send(nctx, adapter.Notification{
		Recipient: p.Recipient,
		Subject:   p.Subject,
		Body:      p.Body,
		Kind:      p.Kind,
	})
	cancel()
	if err != nil {
		run.log.Warn().Err(err).Str("original_job_id", p.OriginalJobID).Msg("notification not delivered")
		return finishRun(run.fail(ctx, err, base))
	}

	base["success"] = true
	base["sent_at"] = e.now()
	return finishRun(run.complete(ctx, base, "Notification sent"))
}
