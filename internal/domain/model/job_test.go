//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{"", JobStatusPending, true},
		{"", JobStatusProcessing, true},
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusCancelled, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusProcessing, false},
		{JobStatusCancelled, JobStatusProcessing, false},
		{JobStatusCancelled, JobStatusCompleted, false},
		{JobStatusPending, "bogus", false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestCheckTransition(t *testing.T) {
	err := CheckTransition("latex_1", JobStatusCompleted, JobStatusFailed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	assert.Contains(t, err.Error(), "completed -> failed")

	assert.NoError(t, CheckTransition("latex_1", JobStatusPending, JobStatusCancelled))
}

func TestFamilyOf(t *testing.T) {
	cases := map[string]JobFamily{
		"latex_abc":             FamilyCompile,
		"jd_ats_abc":            FamilyAnalyze,
		"ats_abc":               FamilyScore,
		"combined_abc_compiled": FamilyCombined,
		"email_1":               FamilyNotify,
	}
	for id, want := range cases {
		got, ok := FamilyOf(id)
		assert.True(t, ok, id)
		assert.Equal(t, want, got, id)
	}
	_, ok := FamilyOf("nope")
	assert.False(t, ok)
}

func TestJobStatusRecordApply(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := JobStatusRecord{JobID: "llm_1", Metadata: map[string]any{"plan": "pro"}}

	r.Apply(JobStatusProcessing, StatusUpdate{Message: "started", Metadata: map[string]any{"attempt_host": "w1"}}, now)
	assert.Equal(t, JobStatusProcessing, r.Status)
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, "pro", r.Metadata["plan"])
	assert.Equal(t, "w1", r.Metadata["attempt_host"])

	later := now.Add(time.Minute)
	r.Apply(JobStatusCompleted, StatusUpdate{}, later)
	assert.Equal(t, "started", r.Message, "empty message keeps previous")
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, later, r.UpdatedAt)
}

func TestJobStatusRecordClearError(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := JobStatusRecord{JobID: "latex_1"}

	r.Apply(JobStatusProcessing, StatusUpdate{Error: "daemon down"}, now)
	r.Apply(JobStatusProcessing, StatusUpdate{Message: "again"}, now)
	assert.Equal(t, "daemon down", r.Error)

	r.Apply(JobStatusCompleted, StatusUpdate{ClearError: true}, now)
	assert.Empty(t, r.Error)

	r.Apply(JobStatusFailed, StatusUpdate{Error: "late", ClearError: true}, now)
	assert.Equal(t, "late", r.Error, "a new error wins over clearing")
}

func TestPriorityForPlan(t *testing.T) {
	assert.Equal(t, PriorityLow, PriorityForPlan(PlanFree))
	assert.Equal(t, PriorityNormal, PriorityForPlan(PlanBasic))
	assert.Equal(t, PriorityHigh, PriorityForPlan(PlanPro))
	assert.Equal(t, PriorityHigh, PriorityForPlan(PlanBYOK))
	assert.Equal(t, PriorityNormal, PriorityForPlan("enterprise"))

	assert.Equal(t, "high", PriorityClass(PriorityHigh))
	assert.Equal(t, "normal", PriorityClass(PriorityNormal))
	assert.Equal(t, "low", PriorityClass(PriorityLow))
}

func TestAttemptFinal(t *testing.T) {
	assert.False(t, Attempt{Retry: 0, MaxRetry: 3}.Final())
	assert.True(t, Attempt{Retry: 3, MaxRetry: 3}.Final())
	assert.True(t, Attempt{}.Final())
}

func TestResultHelpers(t *testing.T) {
	r := FailureResult(errors.New("boom"))
	assert.False(t, r.Success())
	assert.Equal(t, "boom", r.Error())
	assert.True(t, NewResult(true).Success())
	assert.Equal(t, 100, ClampProgress(150))
	assert.Equal(t, 0, ClampProgress(-3))
}

func TestTaskIDOf(t *testing.T) {
	f, id, ok := TaskIDOf("jd_ats_123e4567")
	require.True(t, ok)
	assert.Equal(t, FamilyAnalyze, f)
	assert.Equal(t, "123e4567", id)

	lane, ok := LaneOf(f)
	require.True(t, ok)
	assert.Equal(t, LaneATS, lane)

	_, _, ok = TaskIDOf("latex_")
	assert.False(t, ok)
	_, _, ok = TaskIDOf("unknown_1")
	assert.False(t, ok)
}
