package adapter

import (
	"context"

	"github.com/sanskarpan/Latexy/internal/domain/model"
)

// TaskQueue accepts named work for background execution.
type TaskQueue interface {
	// Enqueue returns the queue's task id, which is the descriptor's TaskID when set.
	Enqueue(ctx context.Context, task model.TaskDescriptor) (string, error)
	// Cancel removes a task that has not started yet; unknown ids are not an error.
	Cancel(ctx context.Context, lane model.Lane, taskID string) error
}
