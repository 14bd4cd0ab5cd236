package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/config"
	"github.com/sanskarpan/Latexy/internal/infra/logging"
	"github.com/sanskarpan/Latexy/internal/infra/metrics"
	"github.com/sanskarpan/Latexy/internal/infra/queue"
	red "github.com/sanskarpan/Latexy/internal/infra/redis"
	"github.com/sanskarpan/Latexy/internal/infra/security"
	"github.com/sanskarpan/Latexy/internal/usecase"
)

// core holds what every role needs: config, logging, the job store and a
// submitter backed by the task queue.
type core struct {
	cfg       *config.Config
	log       *zerolog.Logger
	redis     *red.Client
	store     *red.JobStore
	queueOpt  asynq.RedisConnOpt
	queue     *queue.AsynqQueue
	secrets   *security.SecretBox
	submitter *usecase.JobSubmitter
}

func newCore(ctx context.Context, flags *rootFlags, role string) (*core, error) {
	cfg, err := config.LoadConfig(flags.configPath, flags.dev)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	l := logger.With().Str("role", role).Logger()
	logger = &l

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, role)

	rc, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	opt, err := queue.RedisOpt(&cfg.Redis)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("queue: %w", err)
	}
	box, err := security.NewSecretBox(cfg.Security.EncryptionKey)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("encryption: %w", err)
	}

	c := &core{
		cfg:      cfg,
		log:      logger,
		redis:    rc,
		store:    red.NewJobStore(rc, cfg.Redis.TTL, cfg.Redis.UpdatesChannel, logger),
		queueOpt: opt,
		queue:    queue.NewAsynqQueue(opt, cfg.Queue.Retention, logger),
		secrets:  box,
	}

	opts := []usecase.SubmitterOption{usecase.WithMaxSourceBytes(cfg.Jobs.MaxSourceBytes)}
	if box != nil {
		opts = append(opts, usecase.WithSealer(box))
	} else {
		logger.Warn().Msg("security.encryption_key not set; bring-your-own-key submissions are disabled")
	}
	if t := cfg.Jobs.Trial; t.Enabled {
		opts = append(opts, usecase.WithTrialGate(red.NewTrialLimiter(red.NewRateLimiter(rc), t.Limit, t.Cooldown, t.Daily)))
	}
	c.submitter = usecase.NewJobSubmitter(c.queue, c.store, logger, opts...)

	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting")
	return c, nil
}

func (c *core) close() {
	if err := errors.Join(c.queue.Close(), c.redis.Close()); err != nil {
		c.log.Warn().Err(err).Msg("shutdown: closing connections")
	}
}

// shutdownContext bounds cleanup work after the run context is gone.
func (c *core) shutdownContext() (context.Context, context.CancelFunc) {
	d := c.cfg.HTTP.ShutdownTimeout
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}
