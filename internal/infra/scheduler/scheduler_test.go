package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanskarpan/Latexy/internal/config"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	red "github.com/sanskarpan/Latexy/internal/infra/redis"
	"github.com/sanskarpan/Latexy/internal/usecase"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	reqs []usecase.CleanupRequest
}

func (r *recordingSubmitter) SubmitCleanup(ctx context.Context, req usecase.CleanupRequest) (*usecase.SubmitReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return &usecase.SubmitReceipt{JobID: model.JobID(model.FamilyCleanup, "t")}, nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func nop() *zerolog.Logger { l := zerolog.Nop(); return &l }

func newLocker(t *testing.T) (*red.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := red.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return red.NewLocker(c), mr
}

func TestFireClaimsTickOnce(t *testing.T) {
	locker, mr := newLocker(t)
	sub := &recordingSubmitter{}
	cfg := config.SchedulerConfig{MaxAge: 6 * time.Hour}

	a, err := NewScheduler(cfg, sub, locker, nop())
	require.NoError(t, err)
	b, err := NewScheduler(cfg, sub, locker, nop())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := a.Fire(ctx, model.CleanupExpiredJobs)
	require.NoError(t, err)
	assert.Equal(t, "cleanup_t", id)

	_, err = b.Fire(ctx, model.CleanupExpiredJobs)
	assert.ErrorIs(t, err, red.ErrLockHeld)

	// other kinds use their own lock
	_, err = b.Fire(ctx, model.CleanupTempFiles)
	require.NoError(t, err)

	mr.FastForward(lockTTL + time.Second)
	_, err = b.Fire(ctx, model.CleanupExpiredJobs)
	require.NoError(t, err)

	require.Equal(t, 3, sub.count())
	assert.Equal(t, model.CleanupExpiredJobs, sub.reqs[0].Kind)
	assert.Equal(t, 6*time.Hour, sub.reqs[0].MaxAge)
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(config.SchedulerConfig{TempFilesCron: "every tuesday"}, &recordingSubmitter{}, nil, nop())
	assert.Error(t, err)
}

func TestCronLoopSubmits(t *testing.T) {
	sub := &recordingSubmitter{}
	s, err := NewScheduler(config.SchedulerConfig{HealthCheckCron: "@every 1s"}, sub, nil, nop())
	require.NoError(t, err)

	s.Start(context.Background())
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return sub.count() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Equal(t, model.CleanupHealthCheck, sub.reqs[0].Kind)
}
