package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"

	"github.com/rs/zerolog"
)

// UpdateFeed subscribes to the job updates channel written by JobStore.
type UpdateFeed struct {
	client  *Client
	channel string
	log     *zerolog.Logger
}

func NewUpdateFeed(c *Client, channel string, logger *zerolog.Logger) *UpdateFeed {
	compLog := logger.With().Str("component", "UpdateFeed").Logger()
	return &UpdateFeed{client: c, channel: channel, log: &compLog}
}

// Subscribe returns a channel of decoded updates that closes when ctx is done
// or the subscription drops.
func (f *UpdateFeed) Subscribe(ctx context.Context) (<-chan model.JobUpdate, error) {
	if f.client == nil || f.client.cli == nil {
		return nil, fmt.Errorf("%w: client not initialized", domain.ErrStoreUnavailable)
	}
	ps := f.client.cli.Subscribe(ctx, f.channel)
	// Receive blocks until the subscription is confirmed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, unavailable("subscribe", err)
	}

	out := make(chan model.JobUpdate, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var u model.JobUpdate
				if err := json.Unmarshal([]byte(m.Payload), &u); err != nil {
					f.log.Warn().Err(err).Msg("drop malformed job update")
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
