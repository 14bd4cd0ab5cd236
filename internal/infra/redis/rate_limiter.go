package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/sanskarpan/Latexy/internal/domain"
)

type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow counts one hit against key and reports whether it stays within limit
// for the fixed window that started with the first hit.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil || r.client.cli == nil {
		return false, fmt.Errorf("%w: client not initialized", domain.ErrStoreUnavailable)
	}
	count, err := r.client.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	if count == 1 {
		if err := r.client.cli.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}

	return count <= int64(limit), nil
}

// TrialLimiter enforces the anonymous free-tier limits per device fingerprint:
// a short burst window plus a daily cap.
type TrialLimiter struct {
	rl       *RateLimiter
	limit    int
	cooldown time.Duration
	daily    int
}

func NewTrialLimiter(rl *RateLimiter, limit int, cooldown time.Duration, daily int) *TrialLimiter {
	return &TrialLimiter{rl: rl, limit: limit, cooldown: cooldown, daily: daily}
}

func (t *TrialLimiter) Allow(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := t.rl.Allow(ctx, trialWindowKey(fingerprint), t.limit, t.cooldown)
	if err != nil || !ok {
		return false, err
	}
	return t.rl.Allow(ctx, trialDailyKey(fingerprint, time.Now().UTC()), t.daily, 24*time.Hour)
}

func trialWindowKey(fingerprint string) string {
	return fmt.Sprintf("trial:%s:window", fingerprint)
}

func trialDailyKey(fingerprint string, day time.Time) string {
	return fmt.Sprintf("trial:%s:%s", fingerprint, day.Format("20060102"))
}
