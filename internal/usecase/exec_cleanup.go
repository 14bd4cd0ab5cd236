package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
)

// Cleanup dispatches on the cleanup kind. Every kind is idempotent: things
// already gone are not failures.
func (e *JobExecutor) Cleanup(ctx context.Context, p model.CleanupPayload, at model.Attempt) (model.JobResult, error) {
	run, err := e.begin(ctx, p.Envelope, model.FamilyCleanup, at, string(p.Kind))
	if err != nil {
		return finishRun(nil, err)
	}
	if err := run.checkpoint(ctx, 10, fmt.Sprintf("Starting %s cleanup", p.Kind)); err != nil {
		return finishRun(run.interrupted(err))
	}

	var (
		result model.JobResult
		cerr   error
	)
	switch p.Kind {
	case model.CleanupTempFiles:
		result, cerr = e.sweepTempFiles(ctx, p)
	case model.CleanupExpiredJobs:
		result, cerr = e.sweepExpiredJobs(ctx, run, p)
	case model.CleanupHealthCheck:
		result, cerr = e.healthCheck(ctx), nil
	default:
		cerr = domain.Permanent(invalid("unsupported cleanup type %q", p.Kind))
	}
	if cerr != nil {
		return finishRun(run.fail(ctx, cerr, result))
	}

	if err := run.checkpoint(ctx, 90, "Cleanup finished"); err != nil {
		return finishRun(run.interrupted(err))
	}
	return finishRun(run.complete(ctx, result, fmt.Sprintf("%s cleanup completed", p.Kind)))
}

func (e *JobExecutor) sweepTempFiles(ctx context.Context, p model.CleanupPayload) (model.JobResult, error) {
	if e.Workspace == nil {
		return nil, domain.Permanent(errors.New("workspace not configured on this worker"))
	}
	cutoff := e.now().Add(-p.MaxAge)
	stats, err := e.Workspace.Sweep(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return model.JobResult{
		"success":             true,
		"files_deleted":       stats.FilesDeleted,
		"directories_deleted": stats.DirectoriesDeleted,
		"space_freed":         stats.SpaceFreed,
		"cutoff":              cutoff,
	}, nil
}

// sweepExpiredJobs removes terminal jobs last updated before the cutoff.
func (e *JobExecutor) sweepExpiredJobs(ctx context.Context, run *jobRun, p model.CleanupPayload) (model.JobResult, error) {
	cutoff := e.now().Add(-p.MaxAge)
	ids, err := e.Jobs.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	batch := p.BatchSize
	if batch <= 0 {
		batch = 100
	}

	checked, deleted := 0, 0
	for start := 0; start < len(ids); start += batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			if id == run.id {
				continue
			}
			checked++
			st, err := e.Jobs.GetStatus(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !st.Status.Terminal() || !st.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := e.Jobs.Delete(ctx, id); err != nil {
				return nil, err
			}
			deleted++
		}
	}
	run.log.Info().Int("checked", checked).Int("deleted", deleted).Msg("expired jobs swept")
	return model.JobResult{
		"success":      true,
		"jobs_checked": checked,
		"jobs_deleted": deleted,
		"cutoff":       cutoff,
	}, nil
}

func (e *JobExecutor) healthCheck(ctx context.Context) model.JobResult {
	healthy := true
	result := model.JobResult{"success": true}

	if err := e.Jobs.Ping(ctx); err != nil {
		healthy = false
		result["store_healthy"] = false
		result["store_error"] = err.Error()
	} else {
		result["store_healthy"] = true
	}

	if ids, err := e.Jobs.ListActive(ctx); err == nil {
		result["active_jobs"] = len(ids)
		result["too_many_active_jobs"] = len(ids) > e.cfg.TooManyActive
		if len(ids) > e.cfg.TooManyActive {
			healthy = false
		}
	}

	if e.Workspace != nil {
		if du, err := e.Workspace.DiskUsage(); err == nil {
			result["disk"] = du
			if du.UsedPct > 90 {
				healthy = false
			}
		} else {
			result["disk_error"] = err.Error()
		}
	}
	result["healthy"] = healthy
	return result
}
