package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

// Compile runs a compile job: validate, compile with a hard timeout, store the artifact reference.
func (e *JobExecutor) Compile(ctx context.Context, p model.CompilePayload, at model.Attempt) (model.JobResult, error) {
	run, err := e.begin(ctx, p.Envelope, model.FamilyCompile, at, "")
	if err != nil {
		return finishRun(nil, err)
	}
	return finishRun(e.compile(ctx, run, p.Source))
}

func (e *JobExecutor) compile(ctx context.Context, run *jobRun, source string) (model.JobResult, error) {
	if err := run.checkpoint(ctx, 10, "Validating LaTeX content"); err != nil {
		return run.interrupted(err)
	}
	if err := ValidateLatexSource(source); err != nil {
		return run.fail(ctx, err, compileFailure(run.id, err, nil))
	}
	if e.Compiler == nil {
		err := domain.Permanent(errors.New("compiler not configured on this worker"))
		return run.fail(ctx, err, compileFailure(run.id, err, nil))
	}
	if err := run.checkpoint(ctx, 30, "Compiling LaTeX document"); err != nil {
		return run.interrupted(err)
	}

	timeout := e.cfg.CompileTimeout
	cctx, cancel := context.WithTimeout(ctx, timeout)
	out, err := e.Compiler.Compile(cctx, adapter.CompileRequest{JobID: run.id, Source: source, Timeout: timeout})
	timedOut := err != nil && isDeadline(cctx, err)
	cancel()

	if err != nil {
		if timedOut {
			err = fmt.Errorf("%w: Compilation timeout after %d seconds", domain.ErrTimeout, int(timeout.Seconds()))
		}
		if perr := run.checkpoint(ctx, 50, "Compilation failed"); perr != nil {
			return run.interrupted(perr)
		}
		return run.fail(ctx, err, compileFailure(run.id, err, out))
	}
	if !out.Success {
		// errors in the document itself will not change on retry
		cerr := domain.Permanent(fmt.Errorf("LaTeX compilation failed: %s", firstNonEmpty(out.Error, "see log output")))
		if perr := run.checkpoint(ctx, 50, "Compilation failed"); perr != nil {
			return run.interrupted(perr)
		}
		return run.fail(ctx, cerr, compileFailure(run.id, cerr, out))
	}

	if err := run.checkpoint(ctx, 90, "Compilation completed successfully"); err != nil {
		return run.interrupted(err)
	}
	return run.complete(ctx, model.JobResult{
		"success":          true,
		"job_id":           run.id,
		"pdf_path":         out.PDFPath,
		"pdf_size":         out.PDFSize,
		"compilation_time": out.ElapsedTime.Seconds(),
		"log_output":       out.LogOutput,
	}, "PDF ready")
}

func compileFailure(jobID string, err error, out *adapter.CompileOutput) model.JobResult {
	r := model.FailureResult(err)
	r["job_id"] = jobID
	r["pdf_path"] = nil
	r["pdf_size"] = 0
	if out != nil {
		r["log_output"] = out.LogOutput
		if len(out.Errors) > 0 {
			r["errors"] = out.Errors
		}
		r["compilation_time"] = out.ElapsedTime.Seconds()
	}
	return r
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
