package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

var _ adapter.LLMProvider = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	baseURL      string
	defaultModel string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := newGeminiClient(ctx, apiKey, baseURL)
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-1.5-flash"
	}
	return &GeminiAdapter{client: c, baseURL: baseURL, defaultModel: defaultModel}, nil
}

func newGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
}

func (g *GeminiAdapter) Name() string         { return "gemini" }
func (g *GeminiAdapter) DefaultModel() string { return g.defaultModel }

// CountTokens estimates locally; the SDK's counter costs a round trip.
func (g *GeminiAdapter) CountTokens(model string, messages []adapter.Message) int {
	return CountTokens(messages)
}

// Chat sends the conversation in one GenerateContent call. System messages
// become the system instruction. Function specs are not forwarded.
func (g *GeminiAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (*adapter.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("gemini: no messages")
	}
	client := g.client
	if req.APIKey != "" {
		c, err := newGeminiClient(ctx, req.APIKey, g.baseURL)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		client = c
	}

	model := modelOrDefault(req.Model, g.defaultModel)
	system, contents := toGenAIContents(req.Messages)
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	out := &adapter.ChatResponse{
		Content:  resp.Text(),
		Model:    model,
		Provider: g.Name(),
		Latency:  time.Since(start),
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	if resp.UsageMetadata != nil {
		out.Usage = adapter.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	out.Cost = Cost(model, out.Usage)
	return out, nil
}

func toGenAIContents(msgs []adapter.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})
			continue
		case "assistant", "model":
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return system, out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
