//go:build !integration

package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(nil)
	return &l
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func newTestStore(t *testing.T, ttl time.Duration) (*JobStore, *miniredis.Miniredis) {
	t.Helper()
	c, mr := newTestClient(t)
	return NewJobStore(c, ttl, "job_updates", newTestLogger()), mr
}
