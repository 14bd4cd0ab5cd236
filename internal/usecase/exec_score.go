package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

func (e *JobExecutor) Score(ctx context.Context, p model.ScorePayload, at model.Attempt) (model.JobResult, error) {
	run, err := e.begin(ctx, p.Envelope, model.FamilyScore, at, "")
	if err != nil {
		return finishRun(nil, err)
	}
	if err := run.checkpoint(ctx, 10, "Starting ATS analysis"); err != nil {
		return finishRun(run.interrupted(err))
	}
	if strings.TrimSpace(p.Source) == "" {
		return finishRun(run.fail(ctx, domain.Permanent(invalid("LaTeX content is empty")), scoreFailure()))
	}
	if e.Scorer == nil {
		return finishRun(run.fail(ctx, domain.Permanent(errors.New("ats scorer not configured on this worker")), scoreFailure()))
	}
	if err := run.checkpoint(ctx, 20, "Analyzing resume structure"); err != nil {
		return finishRun(run.interrupted(err))
	}

	timeout := e.cfg.ScoreTimeout
	sctx, cancel := context.WithTimeout(ctx, timeout)
	start := e.now()
	out, err := e.Scorer.Score(sctx, adapter.ScoreRequest{
		Source:         p.Source,
		JobDescription: p.JobDescription,
		Industry:       p.Industry,
	})
	if err != nil && isDeadline(sctx, err) {
		err = timeoutError("ATS scoring", timeout)
	}
	cancel()
	if err != nil {
		return finishRun(run.fail(ctx, err, scoreFailure()))
	}

	if err := run.checkpoint(ctx, 80, "Generating recommendations"); err != nil {
		return finishRun(run.interrupted(err))
	}
	return finishRun(run.complete(ctx, model.JobResult{
		"success":           true,
		"ats_score":         out.OverallScore,
		"category_scores":   out.CategoryScores,
		"recommendations":   nonNil(out.Recommendations),
		"warnings":          nonNil(out.Warnings),
		"strengths":         nonNil(out.Strengths),
		"detailed_analysis": out.DetailedAnalysis,
		"industry":          p.Industry,
		"scoring_time":      e.now().Sub(start).Seconds(),
	}, "ATS scoring completed"))
}

func scoreFailure() model.JobResult {
	r := model.NewResult(false)
	r["ats_score"] = 0.0
	r["category_scores"] = map[string]float64{}
	r["recommendations"] = []string{}
	return r
}

// AnalyzeJobDescription extracts keywords and requirements from a posting.
func (e *JobExecutor) AnalyzeJobDescription(ctx context.Context, p model.AnalyzePayload, at model.Attempt) (model.JobResult, error) {
	run, err := e.begin(ctx, p.Envelope, model.FamilyAnalyze, at, "")
	if err != nil {
		return finishRun(nil, err)
	}
	if err := run.checkpoint(ctx, 20, "Analyzing job description"); err != nil {
		return finishRun(run.interrupted(err))
	}
	if strings.TrimSpace(p.JobDescription) == "" {
		return finishRun(run.fail(ctx, domain.Permanent(invalid("Job description is required for analysis")), nil))
	}
	if e.Scorer == nil {
		return finishRun(run.fail(ctx, domain.Permanent(errors.New("ats scorer not configured on this worker")), nil))
	}

	sctx, cancel := context.WithTimeout(ctx, e.cfg.ScoreTimeout)
	start := e.now()
	out, err := e.Scorer.AnalyzeJobDescription(sctx, p.JobDescription)
	cancel()
	if err != nil {
		return finishRun(run.fail(ctx, err, nil))
	}

	if err := run.checkpoint(ctx, 90, "Analysis completed"); err != nil {
		return finishRun(run.interrupted(err))
	}
	return finishRun(run.complete(ctx, model.JobResult{
		"success":                  true,
		"keywords":                 nonNil(out.Keywords),
		"requirements":             nonNil(out.Requirements),
		"preferred_qualifications": nonNil(out.Preferred),
		"detected_industry":        out.DetectedIndustry,
		"word_count":               out.WordCount,
		"sentence_count":           out.SentenceCount,
		"analysis_time":            e.now().Sub(start).Seconds(),
	}, "Job description analyzed"))
}
