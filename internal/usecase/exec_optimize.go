package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

// Optimize rewrites the resume against the job description.
func (e *JobExecutor) Optimize(ctx context.Context, p model.OptimizePayload, at model.Attempt) (model.JobResult, error) {
	run, err := e.begin(ctx, p.Envelope, model.FamilyOptimize, at, "")
	if err != nil {
		return finishRun(nil, err)
	}
	if err := run.checkpoint(ctx, 10, "Preparing optimization"); err != nil {
		return finishRun(run.interrupted(err))
	}
	if err := run.checkpoint(ctx, 30, "Analyzing job description"); err != nil {
		return finishRun(run.interrupted(err))
	}

	result, err := e.optimize(ctx, p)
	if err != nil {
		return finishRun(run.fail(ctx, err, result))
	}
	if err := run.checkpoint(ctx, 90, "Optimization completed successfully"); err != nil {
		return finishRun(run.interrupted(err))
	}
	return finishRun(run.complete(ctx, result, "Optimization completed"))
}

// optimize calls the LLM collaborator and shapes the result; on failure the
// result still carries the original document.
func (e *JobExecutor) optimize(ctx context.Context, p model.OptimizePayload) (model.JobResult, error) {
	failure := func(err error) (model.JobResult, error) {
		r := model.FailureResult(err)
		r["optimized_latex"] = p.Source
		r["changes_made"] = []string{}
		r["keywords_added"] = []string{}
		r["ats_score"] = nil
		r["tokens_used"] = 0
		return r, err
	}

	if err := ValidateLatexSource(p.Source); err != nil {
		return failure(err)
	}
	if p.JobDescription == "" {
		return failure(domain.Permanent(invalid("job description is required")))
	}
	if e.Optimizer == nil {
		return failure(domain.Permanent(errors.New("llm optimizer not configured on this worker")))
	}

	var apiKey string
	if p.SealedAPIKey != "" {
		if e.Secrets == nil {
			return failure(domain.Permanent(errors.New("cannot open bring-your-own key: no encryption key configured")))
		}
		k, err := e.Secrets.Open(p.SealedAPIKey)
		if err != nil {
			return failure(domain.Permanent(fmt.Errorf("open api key: %w", err)))
		}
		apiKey = k
	}

	timeout := e.cfg.LLMTimeout
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := e.now()
	out, err := e.Optimizer.Optimize(lctx, adapter.OptimizeInput{
		Source:            p.Source,
		JobDescription:    p.JobDescription,
		OptimizationLevel: p.OptimizationLevel,
		Model:             p.Model,
		APIKey:            apiKey,
	})
	if err != nil {
		if isDeadline(lctx, err) {
			err = timeoutError("LLM", timeout)
		}
		return failure(err)
	}
	elapsed := e.now().Sub(start)

	result := model.JobResult{
		"success":           true,
		"optimized_latex":   out.OptimizedLatex,
		"changes_made":      nonNil(out.Changes),
		"warnings":          nonNil(out.Warnings),
		"summary":           out.Summary,
		"keywords_added":    nonNil(out.KeywordsAdded),
		"tokens_used":       out.TokensUsed,
		"provider":          out.Provider,
		"model":             out.Model,
		"cost":              out.Cost,
		"optimization_time": elapsed.Seconds(),
		"ats_score":         nil,
	}
	if e.Scorer != nil {
		sctx, scancel := context.WithTimeout(ctx, e.cfg.ScoreTimeout)
		sc, serr := e.Scorer.Score(sctx, adapter.ScoreRequest{Source: out.OptimizedLatex, JobDescription: p.JobDescription})
		scancel()
		if serr == nil {
			result["ats_score"] = sc.OverallScore
		}
	}
	return result, nil
}

// Combined optimizes, then compiles the optimized document as a nested job
// "{job_id}_compiled". Either stage failing ends the run.
func (e *JobExecutor) Combined(ctx context.Context, p model.OptimizePayload, at model.Attempt) (model.JobResult, error) {
	run, err := e.begin(ctx, p.Envelope, model.FamilyCombined, at, "optimization")
	if err != nil {
		return finishRun(nil, err)
	}
	if err := run.checkpoint(ctx, 20, "Optimizing resume content"); err != nil {
		return finishRun(run.interrupted(err))
	}

	optResult, err := e.optimize(ctx, p)
	if err != nil {
		return finishRun(run.fail(ctx, err, model.JobResult{
			"success":      false,
			"optimization": optResult,
			"compilation":  nil,
			"error":        "Optimization failed: " + err.Error(),
			"stage":        "optimization",
		}))
	}

	if err := run.stage(ctx, "compilation", "Compiling optimized resume"); err != nil {
		return finishRun(run.interrupted(err))
	}
	if err := run.checkpoint(ctx, 60, "Compiling optimized LaTeX"); err != nil {
		return finishRun(run.interrupted(err))
	}

	nestedID := run.id + "_compiled"
	if at.Retry > 0 {
		// a previous attempt may have left a terminal nested job behind
		if err := e.Jobs.Delete(ctx, nestedID); err != nil {
			return finishRun(nil, err)
		}
	}
	optimized, _ := optResult["optimized_latex"].(string)
	nested := model.CompilePayload{
		Envelope: model.Envelope{
			JobID:    nestedID,
			Plan:     p.Plan,
			UserID:   p.UserID,
			DeviceID: p.DeviceID,
			Metadata: map[string]any{"optimized": true, "original_job_id": run.id},
		},
		Source: optimized,
	}
	compResult, cerr := e.Compile(ctx, nested, model.Attempt{})
	if cerr == nil && compResult == nil {
		// nested job was cancelled
		return finishRun(run.interrupted(domain.ErrJobCancelled))
	}

	combined := model.JobResult{
		"success":      cerr == nil && compResult.Success(),
		"optimization": optResult,
		"compilation":  compResult,
		"compiled_job": nestedID,
	}
	if cerr != nil || !compResult.Success() {
		msg := compResult.Error()
		if cerr != nil {
			msg = cerr.Error()
		}
		combined["error"] = "Compilation failed: " + msg
		combined["stage"] = "compilation"
		failErr := cerr
		if failErr == nil {
			failErr = domain.Permanent(errors.New(msg))
		}
		return finishRun(run.fail(ctx, failErr, combined))
	}

	if err := run.checkpoint(ctx, 90, "Optimization and compilation completed"); err != nil {
		return finishRun(run.interrupted(err))
	}
	return finishRun(run.complete(ctx, combined, "Optimized PDF ready"))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
