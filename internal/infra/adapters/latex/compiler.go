package latex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

var _ adapter.Compiler = (*Compiler)(nil)

const (
	ModeDocker = "docker"
	ModeLocal  = "local"

	jobName    = "resume"
	maxLogSize = 1 << 20
	killWait   = 10 * time.Second
)

// runFunc executes name with args inside dir and returns combined output.
type runFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Compiler runs pdflatex for each job inside {root}/{job_id}, either through
// a throwaway container or a local TeX installation.
type Compiler struct {
	mode   string
	image  string
	binary string
	root   string
	run    runFunc
	log    *zerolog.Logger
}

func NewCompiler(mode, image, binary, root string, logger *zerolog.Logger) *Compiler {
	compLog := logger.With().Str("component", "LatexCompiler").Str("mode", mode).Logger()
	if binary == "" {
		binary = "pdflatex"
	}
	return &Compiler{
		mode:   mode,
		image:  image,
		binary: binary,
		root:   root,
		run:    runCommand,
		log:    &compLog,
	}
}

// JobDir is where sources and artifacts for jobID live.
func (c *Compiler) JobDir(jobID string) string {
	return filepath.Join(c.root, jobID)
}

func (c *Compiler) Compile(ctx context.Context, req adapter.CompileRequest) (*adapter.CompileOutput, error) {
	if req.JobID == "" || filepath.Base(req.JobID) != req.JobID {
		return nil, domain.Permanent(fmt.Errorf("%w: bad job id %q", domain.ErrInvalidArgument, req.JobID))
	}
	dir := c.JobDir(req.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, jobName+".tex"), []byte(req.Source), 0o644); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	name, args := c.command(req.JobID, dir)
	start := time.Now()
	output, runErr := c.run(ctx, dir, name, args...)
	elapsed := time.Since(start)

	logText := readLog(filepath.Join(dir, jobName+".log"), output)
	out := &adapter.CompileOutput{
		LogOutput:   logText,
		ElapsedTime: elapsed,
	}

	if ctx.Err() != nil {
		c.log.Warn().Str("job_id", req.JobID).Dur("elapsed", elapsed).Msg("compilation interrupted")
		c.killContainer(req.JobID, dir)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%w: %w", domain.ErrTimeout, ctx.Err())
		}
		return out, ctx.Err()
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		// the toolchain itself could not start
		return out, fmt.Errorf("run %s: %w", name, runErr)
	}

	pdf := filepath.Join(dir, jobName+".pdf")
	info, statErr := os.Stat(pdf)
	if runErr == nil && statErr == nil {
		out.Success = true
		out.PDFPath = pdf
		out.PDFSize = info.Size()
		c.log.Info().Str("job_id", req.JobID).Int64("pdf_size", out.PDFSize).Dur("elapsed", elapsed).Msg("compilation succeeded")
		return out, nil
	}

	out.Errors = ParseLog(logText)
	out.Error = Summarize(out.Errors, logText)
	if runErr == nil {
		out.Error = "PDF file not generated"
	}
	c.log.Info().Str("job_id", req.JobID).Int("errors", len(out.Errors)).Msg("compilation failed")
	return out, nil
}

func containerName(jobID string) string { return "latexy-" + jobID }

func (c *Compiler) command(jobID, dir string) (string, []string) {
	flags := []string{"-interaction=nonstopmode", "-halt-on-error", "-jobname", jobName, jobName + ".tex"}
	if c.mode == ModeDocker {
		args := []string{
			"run", "--rm", "--network", "none",
			"--name", containerName(jobID),
			"-v", dir + ":/workspace",
			"-w", "/workspace",
			c.image, c.binary,
		}
		return "docker", append(args, flags...)
	}
	return c.binary, append([]string{"-output-directory", dir}, flags...)
}

// killContainer stops a container whose docker client was cancelled. Killing
// the client process alone leaves the container running.
func (c *Compiler) killContainer(jobID, dir string) {
	if c.mode != ModeDocker {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), killWait)
	defer cancel()
	if out, err := c.run(ctx, dir, "docker", "kill", containerName(jobID)); err != nil {
		c.log.Warn().Err(err).Str("job_id", jobID).Bytes("output", bytes.TrimSpace(out)).Msg("docker kill failed")
	}
}

func readLog(path string, fallback []byte) string {
	if b, err := os.ReadFile(path); err == nil {
		return string(b)
	}
	return string(fallback)
}

// limitedBuffer keeps at most cap bytes and silently drops the rest.
type limitedBuffer struct {
	bytes.Buffer
	cap int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	left := l.cap - l.Len()
	if left <= 0 {
		return len(p), nil
	}
	if len(p) > left {
		l.Buffer.Write(p[:left])
		return len(p), nil
	}
	return l.Buffer.Write(p)
}

func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		terminateProcessGroup(cmd)
		return nil
	}
	buf := &limitedBuffer{cap: maxLogSize}
	cmd.Stdout = buf
	cmd.Stderr = buf
	err := cmd.Run()
	return buf.Bytes(), err
}
