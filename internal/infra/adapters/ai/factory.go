package ai

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/config"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

var ErrNoProviders = errors.New("no llm provider configured")

// NewFromConfig registers every provider that has a key, behind the
// concurrency limit.
func NewFromConfig(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (adapter.LLMClient, *MultiProvider, error) {
	var providers []adapter.LLMProvider
	if cfg.OpenAIKey != "" {
		p, err := NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.DefaultModel, cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, p)
	}
	if cfg.GeminiKey != "" {
		p, err := NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, nil, ErrNoProviders
	}
	multi := NewMultiProvider(cfg.PrimaryProvider, cfg.FallbackProvider, providers, logger)
	return NewLimited(multi, cfg.ConcurrentLimit), multi, nil
}
