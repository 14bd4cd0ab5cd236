package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/config"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	red "github.com/sanskarpan/Latexy/internal/infra/redis"
	"github.com/sanskarpan/Latexy/internal/usecase"
)

const (
	lockPrefix = "latexy:beat:"
	// lockTTL must stay below the shortest schedule so each tick is claimed once.
	lockTTL    = 50 * time.Second
	runTimeout = 30 * time.Second
)

// Submitter is the slice of the job submit use case the beat needs.
type Submitter interface {
	SubmitCleanup(ctx context.Context, req usecase.CleanupRequest) (*usecase.SubmitReceipt, error)
}

type entry struct {
	spec string
	kind model.CleanupKind
}

// Scheduler periodically submits maintenance jobs. Several replicas may run;
// the Redis lock lets only one of them submit per tick.
type Scheduler struct {
	cron    *cron.Cron
	submit  Submitter
	locker  red.Locker
	maxAge  time.Duration
	entries []entry
	log     *zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(cfg config.SchedulerConfig, submit Submitter, locker red.Locker, logger *zerolog.Logger) (*Scheduler, error) {
	compLog := logger.With().Str("component", "Scheduler").Logger()
	s := &Scheduler{
		cron:   cron.New(),
		submit: submit,
		locker: locker,
		maxAge: cfg.MaxAge,
		log:    &compLog,
	}
	for _, e := range []entry{
		{cfg.ExpiredJobsCron, model.CleanupExpiredJobs},
		{cfg.TempFilesCron, model.CleanupTempFiles},
		{cfg.HealthCheckCron, model.CleanupHealthCheck},
	} {
		if e.spec == "" {
			continue
		}
		kind := e.kind
		if _, err := s.cron.AddFunc(e.spec, func() { s.tick(kind) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", kind, e.spec, err)
		}
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Start runs the cron loop in the background. Calling it twice has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.cron.Start()
	s.log.Info().Int("entries", len(s.entries)).Msg("scheduler started")
}

// Stop halts the loop and waits for running submissions.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	<-s.cron.Stop().Done()
	cancel()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) tick(kind model.CleanupKind) {
	ctx, cancel := context.WithTimeout(s.runContext(), runTimeout)
	defer cancel()
	if _, err := s.Fire(ctx, kind); err != nil && !errors.Is(err, red.ErrLockHeld) {
		s.log.Error().Err(err).Str("cleanup_type", string(kind)).Msg("scheduled cleanup not submitted")
	}
}

// Fire submits one maintenance job now. It returns red.ErrLockHeld when
// another replica already claimed this tick. The lock is left to expire.
func (s *Scheduler) Fire(ctx context.Context, kind model.CleanupKind) (string, error) {
	if s.locker != nil {
		if _, err := s.locker.TryLock(ctx, lockPrefix+string(kind), lockTTL); err != nil {
			if errors.Is(err, red.ErrLockHeld) {
				s.log.Debug().Str("cleanup_type", string(kind)).Msg("tick claimed elsewhere")
			}
			return "", err
		}
	}
	rec, err := s.submit.SubmitCleanup(ctx, usecase.CleanupRequest{Kind: kind, MaxAge: s.maxAge})
	if err != nil {
		return "", err
	}
	s.log.Info().Str("cleanup_type", string(kind)).Str("job_id", rec.JobID).Msg("scheduled cleanup submitted")
	return rec.JobID, nil
}
