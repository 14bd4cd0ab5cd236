package model

import "time"

// UsageEvent is one terminal job written to the analytics store.
type UsageEvent struct {
	ID         string
	JobID      string
	Family     JobFamily
	Status     JobStatus
	UserID     string
	Plan       string
	DeviceID   string
	Provider   string
	TokensUsed int
	CostUSD    float64
	Duration   time.Duration
	CreatedAt  time.Time
}

type UsageSummary struct {
	Family      JobFamily `json:"family"`
	Total       int64     `json:"total"`
	Completed   int64     `json:"completed"`
	Failed      int64     `json:"failed"`
	TokensUsed  int64     `json:"tokens_used"`
	CostUSD     float64   `json:"cost_usd"`
	AvgDuration float64   `json:"avg_duration_seconds"`
}
