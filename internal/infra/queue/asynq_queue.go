package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sanskarpan/Latexy/internal/config"
	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

var _ adapter.TaskQueue = (*AsynqQueue)(nil)

var priorityClasses = []string{"high", "normal", "low"}

// AsynqQueue routes task descriptors onto asynq queues named "{lane}:{class}".
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	retention time.Duration
	log       *zerolog.Logger
}

func NewAsynqQueue(opt asynq.RedisConnOpt, retention time.Duration, logger *zerolog.Logger) *AsynqQueue {
	compLog := logger.With().Str("component", "AsynqQueue").Logger()
	return &AsynqQueue{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		retention: retention,
		log:       &compLog,
	}
}

// RedisOpt builds the asynq connection from the shared redis config.
func RedisOpt(cfg *config.RedisConfig) (asynq.RedisConnOpt, error) {
	if strings.Contains(cfg.URL, "://") {
		opt, err := asynq.ParseRedisURI(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis uri: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: cfg.URL, Password: cfg.Password, DB: cfg.DB}, nil
}

// QueueName is the asynq queue a lane/priority pair lands on.
func QueueName(lane model.Lane, priority int) string {
	return string(lane) + ":" + model.PriorityClass(priority)
}

func (q *AsynqQueue) Enqueue(ctx context.Context, td model.TaskDescriptor) (string, error) {
	if td.Name == "" || td.Lane == "" {
		return "", fmt.Errorf("%w: task name and lane are required", domain.ErrInvalidArgument)
	}
	opts := []asynq.Option{
		asynq.Queue(QueueName(td.Lane, td.Priority)),
		asynq.MaxRetry(td.MaxRetry),
	}
	if td.TaskID != "" {
		opts = append(opts, asynq.TaskID(td.TaskID))
	}
	if td.Timeout > 0 {
		opts = append(opts, asynq.Timeout(td.Timeout))
	}
	if q.retention > 0 {
		opts = append(opts, asynq.Retention(q.retention))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(td.Name, td.Payload), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", fmt.Errorf("%w: task %s", domain.ErrAlreadyExists, td.TaskID)
		}
		return "", fmt.Errorf("%w: enqueue %s: %v", domain.ErrQueueUnavailable, td.Name, err)
	}
	q.log.Debug().
		Str("task", td.Name).
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Int("max_retry", info.MaxRetry).
		Msg("task enqueued")
	return info.ID, nil
}

// Cancel deletes a still-queued task from whichever priority class holds it.
func (q *AsynqQueue) Cancel(ctx context.Context, lane model.Lane, taskID string) error {
	for _, class := range priorityClasses {
		err := q.inspector.DeleteTask(string(lane)+":"+class, taskID)
		switch {
		case err == nil:
			q.log.Info().Str("task_id", taskID).Str("lane", string(lane)).Msg("queued task removed")
			return nil
		case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
			continue
		default:
			// active tasks cannot be deleted; cooperative cancellation handles them
			q.log.Debug().Err(err).Str("task_id", taskID).Msg("delete queued task")
			return nil
		}
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}
