package model

import "time"

// Envelope is the part every task payload shares.
type Envelope struct {
	JobID    string         `json:"job_id"`
	Plan     string         `json:"plan,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
	DeviceID string         `json:"device_fingerprint,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Header is promoted to every payload that embeds Envelope.
func (e Envelope) Header() Envelope { return e }

type CompilePayload struct {
	Envelope
	Source string `json:"latex_content"`
}

type OptimizePayload struct {
	Envelope
	Source            string `json:"latex_content"`
	JobDescription    string `json:"job_description"`
	OptimizationLevel string `json:"optimization_level,omitempty"`
	Model             string `json:"model,omitempty"`
	// SealedAPIKey is the caller's provider key, encrypted.
	SealedAPIKey string `json:"sealed_api_key,omitempty"`
}

type ScorePayload struct {
	Envelope
	Source         string `json:"latex_content"`
	JobDescription string `json:"job_description,omitempty"`
	Industry       string `json:"industry,omitempty"`
}

type AnalyzePayload struct {
	Envelope
	JobDescription string `json:"job_description"`
}

type CleanupKind string

const (
	CleanupTempFiles   CleanupKind = "temp_files"
	CleanupExpiredJobs CleanupKind = "expired_jobs"
	CleanupHealthCheck CleanupKind = "health_check"
)

type CleanupPayload struct {
	Envelope
	Kind      CleanupKind   `json:"kind"`
	MaxAge    time.Duration `json:"max_age"`
	BatchSize int           `json:"batch_size,omitempty"`
}

type NotifyPayload struct {
	Envelope
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Kind      string `json:"kind,omitempty"`
	// OriginalJobID is the job this notice reports on, if any.
	OriginalJobID string `json:"original_job_id,omitempty"`
}
