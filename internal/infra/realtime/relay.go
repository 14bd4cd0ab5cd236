package realtime

import (
	"context"

	"github.com/sanskarpan/Latexy/internal/domain/model"
)

// Relay pushes store updates from any process to this hub's subscribers
// until feed closes or ctx ends.
func (h *Hub) Relay(ctx context.Context, feed <-chan model.JobUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-feed:
			if !ok {
				return
			}
			h.PushUpdate(ctx, u.JobID, updateData(u))
		}
	}
}

func updateData(u model.JobUpdate) map[string]any {
	data := make(map[string]any, len(u.Data)+1)
	for k, v := range u.Data {
		data[k] = v
	}
	data["event"] = u.Kind
	return data
}
