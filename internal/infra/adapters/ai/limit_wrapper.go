package ai

import (
	"context"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.LLMClient = (*limitedClient)(nil)

type limitedClient struct {
	inner adapter.LLMClient
	sem   chan struct{}
}

// NewLimited bounds concurrent chat calls; waiting callers give up when ctx ends.
func NewLimited(inner adapter.LLMClient, maxConcurrent int) adapter.LLMClient {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedClient{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedClient) Chat(ctx context.Context, req adapter.ChatRequest) (*adapter.ChatResponse, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Chat(ctx, req)
}
