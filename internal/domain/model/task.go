package model

import (
	"strings"
	"time"
)

// Lane names a task queue routing channel.
type Lane string

const (
	LaneLatex   Lane = "latex"
	LaneLLM     Lane = "llm"
	LaneATS     Lane = "ats"
	LaneCleanup Lane = "cleanup"
	LaneEmail   Lane = "email"
)

func Lanes() []Lane {
	return []Lane{LaneLatex, LaneLLM, LaneATS, LaneCleanup, LaneEmail}
}

// Task names registered on the worker mux.
const (
	TaskCompile         = "latex:compile"
	TaskCombined        = "latex:optimize_compile"
	TaskOptimize        = "llm:optimize"
	TaskScore           = "ats:score"
	TaskAnalyze         = "ats:analyze_jd"
	TaskCleanupTemp     = "cleanup:temp_files"
	TaskCleanupExpired  = "cleanup:expired_jobs"
	TaskHealthCheck     = "cleanup:health_check"
	TaskNotify          = "email:notify"
	TaskCompletionEmail = "email:completion"
)

// Plan tiers.
const (
	PlanFree  = "free"
	PlanBasic = "basic"
	PlanPro   = "pro"
	PlanBYOK  = "byok"
)

const (
	PriorityLow    = 1
	PriorityNormal = 5
	PriorityHigh   = 9
)

// PriorityForPlan maps a plan tier to a queue priority; unknown tiers run at normal.
func PriorityForPlan(plan string) int {
	switch plan {
	case PlanFree:
		return PriorityLow
	case PlanBasic:
		return PriorityNormal
	case PlanPro, PlanBYOK:
		return PriorityHigh
	}
	return PriorityNormal
}

// PriorityClass buckets a numeric priority into the queue's sub-lanes.
func PriorityClass(p int) string {
	switch {
	case p >= 7:
		return "high"
	case p >= 4:
		return "normal"
	}
	return "low"
}

// TaskDescriptor is what a submitter hands to the task queue.
type TaskDescriptor struct {
	TaskID   string
	Name     string
	Lane     Lane
	Priority int
	Payload  []byte
	MaxRetry int
	Timeout  time.Duration
}

// Attempt describes the current execution attempt of a task.
type Attempt struct {
	Retry    int
	MaxRetry int
}

// Final reports whether a failure on this attempt is the last one.
func (a Attempt) Final() bool {
	return a.Retry >= a.MaxRetry
}

// TaskPolicy is the routing and retry budget of one task name.
type TaskPolicy struct {
	Family   JobFamily
	Lane     Lane
	MaxRetry int
	Backoff  time.Duration
}

var taskPolicies = map[string]TaskPolicy{
	TaskCompile:         {FamilyCompile, LaneLatex, 3, 60 * time.Second},
	TaskCombined:        {FamilyCombined, LaneLatex, 3, 120 * time.Second},
	TaskOptimize:        {FamilyOptimize, LaneLLM, 2, 120 * time.Second},
	TaskScore:           {FamilyScore, LaneATS, 2, 60 * time.Second},
	TaskAnalyze:         {FamilyAnalyze, LaneATS, 2, 60 * time.Second},
	TaskCleanupTemp:     {FamilyCleanup, LaneCleanup, 1, 0},
	TaskCleanupExpired:  {FamilyCleanup, LaneCleanup, 1, 0},
	TaskHealthCheck:     {FamilyCleanup, LaneCleanup, 1, 0},
	TaskNotify:          {FamilyNotify, LaneEmail, 5, 30 * time.Second},
	TaskCompletionEmail: {FamilyNotify, LaneEmail, 0, 30 * time.Second},
}

// PolicyFor returns the policy of a task name.
func PolicyFor(taskName string) (TaskPolicy, bool) {
	p, ok := taskPolicies[taskName]
	return p, ok
}

var familyLanes = map[JobFamily]Lane{
	FamilyCompile:  LaneLatex,
	FamilyCombined: LaneLatex,
	FamilyOptimize: LaneLLM,
	FamilyScore:    LaneATS,
	FamilyAnalyze:  LaneATS,
	FamilyCleanup:  LaneCleanup,
	FamilyNotify:   LaneEmail,
}

// LaneOf is the lane that runs jobs of family f.
func LaneOf(f JobFamily) (Lane, bool) {
	l, ok := familyLanes[f]
	return l, ok
}

// TaskIDOf splits a job id into its family and queue task id.
func TaskIDOf(jobID string) (JobFamily, string, bool) {
	f, ok := FamilyOf(jobID)
	if !ok {
		return "", "", false
	}
	id := strings.TrimPrefix(jobID, string(f)+"_")
	if id == "" {
		return "", "", false
	}
	return f, id, true
}
