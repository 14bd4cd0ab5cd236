package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
	"github.com/sanskarpan/Latexy/internal/infra/adapters/ai"
	"github.com/sanskarpan/Latexy/internal/infra/adapters/ats"
	"github.com/sanskarpan/Latexy/internal/infra/adapters/latex"
	"github.com/sanskarpan/Latexy/internal/infra/adapters/notify"
	pg "github.com/sanskarpan/Latexy/internal/infra/db/postgres"
	"github.com/sanskarpan/Latexy/internal/infra/queue"
	"github.com/sanskarpan/Latexy/internal/infra/worker"
	"github.com/sanskarpan/Latexy/internal/usecase"
)

func newWorkerCmd(flags *rootFlags) *cobra.Command {
	var lanes []string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run task executors for the configured lanes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := newCore(ctx, flags, "worker")
			if err != nil {
				return err
			}
			defer c.close()
			if len(lanes) > 0 {
				c.cfg.Queue.Lanes = lanes
			}
			return runWorker(ctx, c)
		},
	}
	cmd.Flags().StringSliceVar(&lanes, "lanes", nil, "lanes to consume (default: all)")
	return cmd
}

func runWorker(ctx context.Context, c *core) error {
	cfg := c.cfg
	deps := usecase.ExecutorDeps{
		Jobs:      c.store,
		Compiler:  latex.NewCompiler(cfg.Latex.Mode, cfg.Latex.DockerImage, cfg.Latex.Binary, cfg.Latex.WorkRoot, c.log),
		Workspace: latex.NewWorkspace(cfg.Latex.WorkRoot),
		Scorer:    ats.NewScorer(c.log),
		Notifier:  newNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, c),
	}
	if c.secrets != nil {
		deps.Secrets = c.secrets
	}

	llm, multi, err := ai.NewFromConfig(ctx, cfg.AI, c.log)
	switch {
	case errors.Is(err, ai.ErrNoProviders):
		c.log.Warn().Msg("no LLM provider configured; optimization jobs will fail")
	case err != nil:
		return err
	default:
		deps.Optimizer = ai.NewOptimizer(llm, cfg.AI.MaxTokens, cfg.AI.Temperature, c.log)
		go logProviderStats(ctx, multi, c)
	}

	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database.URL, 5)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		deps.Usage = pg.NewUsageRepo(pool)
		go pg.ReportPoolStats(ctx, pool, 30*time.Second, c.log)
	} else {
		c.log.Info().Msg("database.url not set; usage analytics disabled")
	}

	exec := usecase.NewJobExecutor(deps, usecase.ExecutorConfig{
		CompileTimeout: cfg.Latex.Timeout,
		LLMTimeout:     cfg.AI.Timeout,
		ScoreTimeout:   cfg.Jobs.ScoreTimeout,
		NotifyTimeout:  cfg.Jobs.NotifyTimeout,
	}, c.log)

	srv := queue.NewServer(c.queueOpt, queue.ServerConfig{
		Concurrency:     cfg.Queue.Concurrency,
		Lanes:           parseLanes(cfg.Queue.Lanes),
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, c.log)
	if err := srv.Start(worker.NewTaskProcessor(exec, c.submitter, c.log).Mux()); err != nil {
		return err
	}
	<-ctx.Done()
	c.log.Info().Msg("worker draining")
	srv.Shutdown()
	return nil
}

func parseLanes(names []string) []model.Lane {
	if len(names) == 0 {
		return model.Lanes()
	}
	out := make([]model.Lane, 0, len(names))
	for _, n := range names {
		out = append(out, model.Lane(n))
	}
	return out
}

func newNotifier(token string, chatID int64, c *core) adapter.Notifier {
	if token == "" {
		return notify.NewLogNotifier(c.log)
	}
	tg, err := notify.NewTelegramNotifier(token, chatID, c.log)
	if err != nil {
		c.log.Error().Err(err).Msg("telegram notifier unavailable; falling back to log channel")
		return notify.NewLogNotifier(c.log)
	}
	return tg
}

func logProviderStats(ctx context.Context, multi *ai.MultiProvider, c *core) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, st := range multi.Stats() {
				c.log.Info().Interface("stats", st).Msg("llm provider usage")
			}
		}
	}
}
