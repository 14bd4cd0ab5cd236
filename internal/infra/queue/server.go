package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sanskarpan/Latexy/internal/domain/model"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

var laneWeights = map[model.Lane]int{
	model.LaneLatex:   4,
	model.LaneLLM:     3,
	model.LaneATS:     2,
	model.LaneEmail:   1,
	model.LaneCleanup: 1,
}

var classWeights = map[string]int{"high": 6, "normal": 3, "low": 1}

// QueueWeights expands lanes into weighted priority sub-queues for the worker.
func QueueWeights(lanes []model.Lane) map[string]int {
	if len(lanes) == 0 {
		lanes = model.Lanes()
	}
	out := make(map[string]int, len(lanes)*len(priorityClasses))
	for _, lane := range lanes {
		lw, ok := laneWeights[lane]
		if !ok {
			lw = 1
		}
		for _, class := range priorityClasses {
			out[string(lane)+":"+class] = lw * classWeights[class]
		}
	}
	return out
}

// RetryDelay is the family backoff; unknown tasks fall back to asynq's default.
func RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	if p, ok := model.PolicyFor(t.Type()); ok {
		return p.Backoff
	}
	return asynq.DefaultRetryDelayFunc(n, err, t)
}

type ServerConfig struct {
	Concurrency     int
	Lanes           []model.Lane
	ShutdownTimeout time.Duration
}

func NewServer(opt asynq.RedisConnOpt, cfg ServerConfig, logger *zerolog.Logger) *asynq.Server {
	compLog := logger.With().Str("component", "AsynqServer").Logger()
	return asynq.NewServer(opt, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          QueueWeights(cfg.Lanes),
		RetryDelayFunc:  RetryDelay,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          &zerologAdapter{log: &compLog},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			id, _ := asynq.GetTaskID(ctx)
			ev := compLog.Warn()
			if retried >= maxRetry {
				ev = compLog.Error()
			}
			ev.Err(err).
				Str("task", task.Type()).
				Str("task_id", id).
				Int("retried", retried).
				Int("max_retry", maxRetry).
				Msg("task failed")
		}),
	})
}

// zerologAdapter satisfies asynq.Logger.
type zerologAdapter struct {
	log *zerolog.Logger
}

func (a *zerologAdapter) Debug(args ...interface{}) { a.log.Debug().Msg(fmt.Sprint(args...)) }
func (a *zerologAdapter) Info(args ...interface{})  { a.log.Info().Msg(fmt.Sprint(args...)) }
func (a *zerologAdapter) Warn(args ...interface{})  { a.log.Warn().Msg(fmt.Sprint(args...)) }
func (a *zerologAdapter) Error(args ...interface{}) { a.log.Error().Msg(fmt.Sprint(args...)) }
func (a *zerologAdapter) Fatal(args ...interface{}) { a.log.Fatal().Msg(fmt.Sprint(args...)) }
