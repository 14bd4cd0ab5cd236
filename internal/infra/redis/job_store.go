package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	statusPrefix   = "status:"
	progressPrefix = "progress:"
	resultPrefix   = "result:"

	// optimistic transaction attempts for a contended status key
	maxTxRetries = 5
	scanCount    = 100
)

var _ repository.JobRepository = (*JobStore)(nil)

// JobStore keeps status, progress and result blobs per job, each under its own
// key with the same retention TTL. Every write is published on the updates
// channel for realtime fan-out.
type JobStore struct {
	cli     *redis.Client
	ttl     time.Duration
	channel string
	log     *zerolog.Logger
	now     func() time.Time
}

func NewJobStore(c *Client, ttl time.Duration, channel string, logger *zerolog.Logger) *JobStore {
	compLog := logger.With().Str("component", "JobStore").Logger()
	s := &JobStore{
		ttl:     normalizeRetention(ttl),
		channel: channel,
		log:     &compLog,
		now:     time.Now,
	}
	if c != nil {
		s.cli = c.cli
	}
	return s
}

func normalizeRetention(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func statusKey(id string) string   { return statusPrefix + id }
func progressKey(id string) string { return progressPrefix + id }
func resultKey(id string) string   { return resultPrefix + id }

func (s *JobStore) ready() error {
	if s.cli == nil {
		return fmt.Errorf("%w: client not initialized", domain.ErrStoreUnavailable)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.cli.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *JobStore) Create(ctx context.Context, jobID string, family model.JobFamily, metadata map[string]any) error {
	if err := s.ready(); err != nil {
		return err
	}
	now := s.now()
	rec := model.JobStatusRecord{
		JobID:     jobID,
		Status:    model.JobStatusPending,
		Family:    family,
		Message:   "Job queued",
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	created, err := s.cli.SetNX(ctx, statusKey(jobID), b, s.ttl).Result()
	if err != nil {
		return unavailable("create", err)
	}
	if created {
		s.publish(ctx, jobID, "status", statusData(&rec))
	}
	return nil
}

// SetStatus applies the transition inside a WATCH/MULTI block so two writers
// cannot both move the job out of the same state.
func (s *JobStore) SetStatus(ctx context.Context, jobID string, status model.JobStatus, u model.StatusUpdate) (*model.JobStatusRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	key := statusKey(jobID)
	var out model.JobStatusRecord

	txf := func(tx *redis.Tx) error {
		rec, err := loadStatus(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := model.CheckTransition(jobID, rec.Status, status); err != nil {
			return err
		}
		rec.JobID = jobID
		if rec.Family == "" {
			rec.Family, _ = model.FamilyOf(jobID)
		}
		rec.Apply(status, u, s.now())
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, s.ttl)
			p.Expire(ctx, progressKey(jobID), s.ttl)
			p.Expire(ctx, resultKey(jobID), s.ttl)
			return nil
		})
		out = rec
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.cli.Watch(ctx, txf, key)
		switch {
		case err == nil:
			s.publish(ctx, jobID, "status", statusData(&out))
			return &out, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, domain.ErrInvalidTransition):
			return nil, err
		default:
			return nil, unavailable("set status", err)
		}
	}
	return nil, unavailable("set status", redis.TxFailedErr)
}

func loadStatus(ctx context.Context, tx *redis.Tx, key string) (model.JobStatusRecord, error) {
	var rec model.JobStatusRecord
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, nil
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode status: %w", err)
	}
	return rec, nil
}

func (s *JobStore) GetStatus(ctx context.Context, jobID string) (*model.JobStatusRecord, error) {
	var rec model.JobStatusRecord
	if err := s.getJSON(ctx, statusKey(jobID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *JobStore) SetProgress(ctx context.Context, jobID string, percent int, message string) error {
	p := model.JobProgress{
		Progress:  model.ClampProgress(percent),
		Message:   message,
		UpdatedAt: s.now(),
	}
	if err := s.setJSON(ctx, progressKey(jobID), p); err != nil {
		return err
	}
	s.publish(ctx, jobID, "progress", map[string]any{
		"progress":   p.Progress,
		"message":    p.Message,
		"updated_at": p.UpdatedAt,
	})
	return nil
}

func (s *JobStore) GetProgress(ctx context.Context, jobID string) (*model.JobProgress, error) {
	var p model.JobProgress
	if err := s.getJSON(ctx, progressKey(jobID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *JobStore) SetResult(ctx context.Context, jobID string, result model.JobResult) error {
	if err := s.setJSON(ctx, resultKey(jobID), result); err != nil {
		return err
	}
	s.publish(ctx, jobID, "result", map[string]any{"result": map[string]any(result)})
	return nil
}

func (s *JobStore) GetResult(ctx context.Context, jobID string) (model.JobResult, error) {
	var r model.JobResult
	if err := s.getJSON(ctx, resultKey(jobID), &r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete drops all three keys in one DEL.
func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.cli.Del(ctx, statusKey(jobID), progressKey(jobID), resultKey(jobID)).Err(); err != nil {
		return unavailable("delete", err)
	}
	s.publish(ctx, jobID, "deleted", map[string]any{})
	return nil
}

// ListActive scans the status keyspace. Cost grows with live jobs.
func (s *JobStore) ListActive(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, scanCount)
	var cursor uint64
	for {
		keys, next, err := s.cli.Scan(ctx, cursor, statusPrefix+"*", scanCount).Result()
		if err != nil {
			return nil, unavailable("scan", err)
		}
		for _, k := range keys {
			id := strings.TrimPrefix(k, statusPrefix)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

func (s *JobStore) setJSON(ctx context.Context, key string, v any) error {
	if err := s.ready(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.cli.Set(ctx, key, b, s.ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *JobStore) getJSON(ctx context.Context, key string, v any) error {
	if err := s.ready(); err != nil {
		return err
	}
	raw, err := s.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotFound
	}
	if err != nil {
		return unavailable("get", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *JobStore) publish(ctx context.Context, jobID, kind string, data map[string]any) {
	if s.channel == "" {
		return
	}
	b, err := json.Marshal(model.JobUpdate{JobID: jobID, Kind: kind, Data: data})
	if err != nil {
		return
	}
	if err := s.cli.Publish(ctx, s.channel, b).Err(); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Str("kind", kind).Msg("publish job update failed")
	}
}

func statusData(r *model.JobStatusRecord) map[string]any {
	d := map[string]any{
		"status":     r.Status,
		"updated_at": r.UpdatedAt,
	}
	if r.Message != "" {
		d["message"] = r.Message
	}
	if r.Error != "" {
		d["error"] = r.Error
	}
	if r.Stage != "" {
		d["stage"] = r.Stage
	}
	return d
}
