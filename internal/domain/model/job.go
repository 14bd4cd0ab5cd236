package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/sanskarpan/Latexy/internal/domain"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status writes are accepted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransition checks the job state graph. An empty from means no record
// exists yet. Processing may be rewritten to refresh its metadata.
func CanTransition(from, to JobStatus) bool {
	if !to.Valid() {
		return false
	}
	switch from {
	case "":
		return true
	case JobStatusPending:
		return to == JobStatusProcessing || to == JobStatusFailed || to == JobStatusCancelled
	case JobStatusProcessing:
		return to != JobStatusPending
	default:
		return false
	}
}

// CheckTransition wraps CanTransition with a descriptive error.
func CheckTransition(jobID string, from, to JobStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	if from == "" {
		from = "absent"
	}
	return fmt.Errorf("job %s: %s -> %s: %w", jobID, from, to, domain.ErrInvalidTransition)
}

// JobFamily is the short tag prefixed to a job id.
type JobFamily string

const (
	FamilyCompile  JobFamily = "latex"
	FamilyOptimize JobFamily = "llm"
	FamilyCombined JobFamily = "combined"
	FamilyScore    JobFamily = "ats"
	FamilyAnalyze  JobFamily = "jd_ats"
	FamilyCleanup  JobFamily = "cleanup"
	FamilyNotify   JobFamily = "email"
)

// JobID couples the public job id to the queue task id.
func JobID(f JobFamily, taskID string) string {
	return string(f) + "_" + taskID
}

// FamilyOf recovers the family from a job id. Nested compile ids
// ("{id}_compiled") resolve to the family of their parent.
func FamilyOf(jobID string) (JobFamily, bool) {
	// jd_ats must be checked before ats.
	for _, f := range []JobFamily{FamilyAnalyze, FamilyCompile, FamilyOptimize, FamilyCombined, FamilyScore, FamilyCleanup, FamilyNotify} {
		if strings.HasPrefix(jobID, string(f)+"_") {
			return f, true
		}
	}
	return "", false
}

// JobStatusRecord is the status blob stored per job.
type JobStatusRecord struct {
	JobID       string         `json:"job_id"`
	Status      JobStatus      `json:"status"`
	Family      JobFamily      `json:"family,omitempty"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	Stage       string         `json:"stage,omitempty"`
	Attempt     int            `json:"attempt,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// StatusUpdate carries the optional fields merged into a status record.
// Zero values leave the stored field untouched; ClearError drops a stored
// error left by an earlier attempt.
type StatusUpdate struct {
	Message     string
	Error       string
	ClearError  bool
	Stage       string
	Attempt     int
	Metadata    map[string]any
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Apply merges u into r and stamps UpdatedAt.
func (r *JobStatusRecord) Apply(status JobStatus, u StatusUpdate, now time.Time) {
	r.Status = status
	if u.Message != "" {
		r.Message = u.Message
	}
	switch {
	case u.Error != "":
		r.Error = u.Error
	case u.ClearError:
		r.Error = ""
	}
	if u.Stage != "" {
		r.Stage = u.Stage
	}
	if u.Attempt > 0 {
		r.Attempt = u.Attempt
	}
	if len(u.Metadata) > 0 {
		if r.Metadata == nil {
			r.Metadata = make(map[string]any, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			r.Metadata[k] = v
		}
	}
	if u.StartedAt != nil {
		r.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		r.CompletedAt = u.CompletedAt
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}

type JobProgress struct {
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobResult is the terminal payload. "success" is always present.
type JobResult map[string]any

func NewResult(success bool) JobResult {
	return JobResult{"success": success}
}

func FailureResult(err error) JobResult {
	r := NewResult(false)
	if err != nil {
		r["error"] = err.Error()
	}
	return r
}

func (r JobResult) Success() bool {
	v, _ := r["success"].(bool)
	return v
}

func (r JobResult) Error() string {
	v, _ := r["error"].(string)
	return v
}

// ClampProgress bounds a percentage to 0..100.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// JobUpdate is the delta published whenever a job changes.
type JobUpdate struct {
	JobID string         `json:"job_id"`
	Kind  string         `json:"kind"` // status | progress | result | deleted
	Data  map[string]any `json:"data"`
}
