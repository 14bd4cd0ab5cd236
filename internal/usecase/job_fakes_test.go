//go:build !integration

package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
	red "github.com/sanskarpan/Latexy/internal/infra/redis"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newJobStore(t *testing.T) (*red.JobStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := red.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return red.NewJobStore(c, time.Hour, "job_updates", nopLogger()), mr
}

// memQueue records enqueued descriptors.
type memQueue struct {
	mu        sync.Mutex
	tasks     []model.TaskDescriptor
	cancelled []string
	err       error
	delay     time.Duration
}

func (q *memQueue) Enqueue(ctx context.Context, task model.TaskDescriptor) (string, error) {
	if q.delay > 0 {
		time.Sleep(q.delay)
	}
	if q.err != nil {
		return "", q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return task.TaskID, nil
}

func (q *memQueue) Cancel(ctx context.Context, lane model.Lane, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

func (q *memQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type stubCompiler struct {
	out   *adapter.CompileOutput
	err   error
	calls int
	// before runs ahead of returning, e.g. to cancel the job mid-flight
	before func(req adapter.CompileRequest)
}

func (c *stubCompiler) Compile(ctx context.Context, req adapter.CompileRequest) (*adapter.CompileOutput, error) {
	c.calls++
	if c.before != nil {
		c.before(req)
	}
	if c.err != nil {
		return c.out, c.err
	}
	if c.out != nil {
		return c.out, nil
	}
	return &adapter.CompileOutput{
		Success:     true,
		PDFPath:     "/tmp/latexy/" + req.JobID + "/resume.pdf",
		PDFSize:     2048,
		LogOutput:   "Output written on resume.pdf",
		ElapsedTime: 1500 * time.Millisecond,
	}, nil
}

// blockingCompiler waits for the caller's context.
type blockingCompiler struct{}

func (blockingCompiler) Compile(ctx context.Context, req adapter.CompileRequest) (*adapter.CompileOutput, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubOptimizer struct {
	calls int
	last  adapter.OptimizeInput
	err   error
}

func (o *stubOptimizer) Optimize(ctx context.Context, in adapter.OptimizeInput) (*adapter.OptimizeOutput, error) {
	o.calls++
	o.last = in
	if o.err != nil {
		return nil, o.err
	}
	return &adapter.OptimizeOutput{
		OptimizedLatex: in.Source + "% optimized\n",
		Changes:        []string{"tightened summary"},
		KeywordsAdded:  []string{"kubernetes"},
		TokensUsed:     420,
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		Cost:           0.0012,
	}, nil
}

type stubScorer struct{ err error }

func (s stubScorer) Score(ctx context.Context, req adapter.ScoreRequest) (*adapter.ScoreOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &adapter.ScoreOutput{
		OverallScore:    78.5,
		CategoryScores:  map[string]float64{"formatting": 80, "keywords": 70},
		Recommendations: []string{"add metrics"},
	}, nil
}

func (s stubScorer) AnalyzeJobDescription(ctx context.Context, jd string) (*adapter.JobDescriptionAnalysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &adapter.JobDescriptionAnalysis{
		Keywords:         []string{"go", "redis"},
		DetectedIndustry: "technology",
		WordCount:        12,
		SentenceCount:    2,
	}, nil
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []adapter.Notification
	err  error
}

func (n *stubNotifier) Name() string { return "stub" }

func (n *stubNotifier) Send(ctx context.Context, msg adapter.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type stubWorkspace struct {
	stats  adapter.SweepStats
	cutoff time.Time
}

func (w *stubWorkspace) Sweep(ctx context.Context, cutoff time.Time) (adapter.SweepStats, error) {
	w.cutoff = cutoff
	s := w.stats
	// a second sweep finds nothing left
	w.stats = adapter.SweepStats{}
	return s, nil
}

func (w *stubWorkspace) DiskUsage() (adapter.DiskUsage, error) {
	return adapter.DiskUsage{Path: "/tmp/latexy", TotalBytes: 100, FreeBytes: 60, UsedPct: 40}, nil
}

type memUsage struct {
	mu     sync.Mutex
	events []*model.UsageEvent
}

func (m *memUsage) RecordJob(ctx context.Context, ev *model.UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// failingUsage rejects every write.
type failingUsage struct{ memUsage }

func (*failingUsage) RecordJob(context.Context, *model.UsageEvent) error {
	return errors.New("analytics db down")
}

func (m *memUsage) SummaryByFamily(ctx context.Context, since time.Time) ([]model.UsageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.UsageSummary
	idx := map[model.JobFamily]int{}
	for _, ev := range m.events {
		if ev.CreatedAt.Before(since) {
			continue
		}
		i, ok := idx[ev.Family]
		if !ok {
			i = len(out)
			idx[ev.Family] = i
			out = append(out, model.UsageSummary{Family: ev.Family})
		}
		out[i].Total++
		switch ev.Status {
		case model.JobStatusCompleted:
			out[i].Completed++
		case model.JobStatusFailed:
			out[i].Failed++
		}
		out[i].TokensUsed += int64(ev.TokensUsed)
	}
	return out, nil
}

// dirArtifacts serves canned bytes keyed by "{job_id}/{kind}".
type dirArtifacts map[string]string

func (d dirArtifacts) OpenArtifact(jobID string, kind adapter.ArtifactKind) (*adapter.Artifact, error) {
	body, ok := d[jobID+"/"+string(kind)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &adapter.Artifact{
		ReadSeekCloser: nopSeekCloser{strings.NewReader(body)},
		Name:           "resume." + string(kind),
		Size:           int64(len(body)),
	}, nil
}

type nopSeekCloser struct{ io.ReadSeeker }

func (nopSeekCloser) Close() error { return nil }

type stubGate struct{ allow bool }

func (g stubGate) Allow(ctx context.Context, fingerprint string) (bool, error) { return g.allow, nil }

type countingGate struct {
	mu    sync.Mutex
	calls int
}

func (g *countingGate) Allow(ctx context.Context, fingerprint string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return true, nil
}

type brokenSealer struct{}

func (brokenSealer) Seal(string) (string, error) { return "", errors.New("kms unavailable") }

type reverseSealer struct{}

func (reverseSealer) Seal(s string) (string, error) { return "sealed:" + s, nil }

func (reverseSealer) Open(s string) (string, error) {
	if len(s) < 7 || s[:7] != "sealed:" {
		return "", errors.New("bad ciphertext")
	}
	return s[7:], nil
}

const validLatex = "\\documentclass{article}\n\\begin{document}\nHello\n\\end{document}\n"
