package adapter

import (
	"context"
	"time"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// FunctionSpec is an optional tool schema offered to the model.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
	Functions   []FunctionSpec
	// APIKey overrides the provider key for bring-your-own-key callers.
	APIKey string
}

type ChatResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	Usage        Usage         `json:"usage"`
	Cost         float64       `json:"cost"`
	Latency      time.Duration `json:"latency"`
	FinishReason string        `json:"finish_reason"`
}

// LLMProvider is one backend able to answer chat requests.
type LLMProvider interface {
	Name() string
	DefaultModel() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// CountTokens is best-effort when the provider doesn't expose a tokenizer.
	CountTokens(model string, messages []Message) int
}

// LLMClient is what executors depend on.
type LLMClient interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type OptimizeInput struct {
	Source            string
	JobDescription    string
	OptimizationLevel string // conservative | balanced | aggressive
	Model             string
	APIKey            string
}

type OptimizeOutput struct {
	OptimizedLatex string   `json:"optimized_latex"`
	Changes        []string `json:"changes_made"`
	Warnings       []string `json:"warnings"`
	Summary        string   `json:"summary"`
	KeywordsAdded  []string `json:"keywords_added"`
	TokensUsed     int      `json:"tokens_used"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Cost           float64  `json:"cost"`
}

// ResumeOptimizer rewrites a document to better match a job description.
type ResumeOptimizer interface {
	Optimize(ctx context.Context, in OptimizeInput) (*OptimizeOutput, error)
}
