//go:build !integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
)

type fakeDB struct {
	err  error
	args []interface{}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	f.args = arguments
	return pgconn.CommandTag("INSERT 0 1"), f.err
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, f.err
}

func TestRecordJobFillsDefaults(t *testing.T) {
	db := &fakeDB{}
	repo := &usageRepo{db: db}
	ev := &model.UsageEvent{JobID: "latex_1", Family: model.FamilyCompile, Status: model.JobStatusCompleted}
	require.NoError(t, repo.RecordJob(context.Background(), ev))
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.CreatedAt.IsZero())
	assert.Equal(t, "latex", db.args[2])
}

func TestRecordJobDuplicateIsIgnored(t *testing.T) {
	repo := &usageRepo{db: &fakeDB{err: &pgconn.PgError{Code: uniqueViolation}}}
	err := repo.RecordJob(context.Background(), &model.UsageEvent{JobID: "latex_1"})
	assert.NoError(t, err)
}

func TestRecordJobRequiresJobID(t *testing.T) {
	repo := &usageRepo{db: &fakeDB{}}
	assert.ErrorIs(t, repo.RecordJob(context.Background(), &model.UsageEvent{}), domain.ErrInvalidArgument)
}

func TestMapErr(t *testing.T) {
	err := mapErr("op", errors.New("dial tcp: connection refused"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	err = mapErr("op", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "42P01")

	err = mapErr("op", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSummaryQueryError(t *testing.T) {
	repo := &usageRepo{db: &fakeDB{err: errors.New("closed pool")}}
	_, err := repo.SummaryByFamily(context.Background(), time.Time{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
