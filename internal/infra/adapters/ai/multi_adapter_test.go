package ai_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
	ai "github.com/sanskarpan/Latexy/internal/infra/adapters/ai"
)

type stubProvider struct {
	name   string
	model  string
	err    error
	calls  int
	models []string
}

func (s *stubProvider) Name() string         { return s.name }
func (s *stubProvider) DefaultModel() string { return s.model }
func (s *stubProvider) CountTokens(model string, msgs []adapter.Message) int {
	return len(msgs)
}
func (s *stubProvider) Chat(ctx context.Context, req adapter.ChatRequest) (*adapter.ChatResponse, error) {
	s.calls++
	s.models = append(s.models, req.Model)
	if s.err != nil {
		return nil, s.err
	}
	return &adapter.ChatResponse{
		Content:  "ok from " + s.name,
		Model:    s.model,
		Provider: s.name,
		Usage:    adapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Cost:     0.01,
	}, nil
}

func nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestRoutingByModelFamilyAndPrimary(t *testing.T) {
	open := &stubProvider{name: "openai", model: "gpt-4o-mini"}
	gem := &stubProvider{name: "gemini", model: "gemini-1.5-flash"}
	m := ai.NewMultiProvider("openai", "gemini", []adapter.LLMProvider{open, gem}, nop())
	ctx := context.Background()

	resp, err := m.Chat(ctx, adapter.ChatRequest{Model: "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", resp.Provider)

	resp, err = m.Chat(ctx, adapter.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)

	resp, err = m.Chat(ctx, adapter.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, []string{"gemini", "openai"}, m.Providers())
}

func TestFallbackOnPrimaryFailure(t *testing.T) {
	open := &stubProvider{name: "openai", model: "gpt-4o-mini", err: errors.New("503 upstream")}
	gem := &stubProvider{name: "gemini", model: "gemini-1.5-flash"}
	m := ai.NewMultiProvider("openai", "gemini", []adapter.LLMProvider{open, gem}, nop())

	resp, err := m.Chat(context.Background(), adapter.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", resp.Provider)
	assert.Equal(t, 1, open.calls)
	assert.Equal(t, 1, gem.calls)
	// the fallback runs on its own default model
	assert.Equal(t, []string{""}, gem.models)

	stats := m.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, ai.ProviderStats{Provider: "gemini", Requests: 1, Tokens: 15, Cost: 0.01, Status: "healthy"}, stats[0])
	assert.Equal(t, 1, stats[1].Errors)
}

func TestFallbackFailureKeepsBothErrors(t *testing.T) {
	open := &stubProvider{name: "openai", err: errors.New("primary down")}
	gem := &stubProvider{name: "gemini", err: errors.New("secondary down")}
	m := ai.NewMultiProvider("openai", "gemini", []adapter.LLMProvider{open, gem}, nop())

	_, err := m.Chat(context.Background(), adapter.ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary down")
	assert.Contains(t, err.Error(), "secondary down")
	assert.Equal(t, 1, gem.calls)
}

func TestNoFallbackWithCallerKey(t *testing.T) {
	open := &stubProvider{name: "openai", err: errors.New("invalid key")}
	gem := &stubProvider{name: "gemini"}
	m := ai.NewMultiProvider("openai", "gemini", []adapter.LLMProvider{open, gem}, nop())

	_, err := m.Chat(context.Background(), adapter.ChatRequest{APIKey: "sk-user"})
	require.Error(t, err)
	assert.Zero(t, gem.calls)
}

func TestDegradedAfterRepeatedErrors(t *testing.T) {
	open := &stubProvider{name: "openai", err: errors.New("boom")}
	m := ai.NewMultiProvider("openai", "", []adapter.LLMProvider{open}, nop())
	for i := 0; i < 5; i++ {
		_, _ = m.Chat(context.Background(), adapter.ChatRequest{})
	}
	assert.Equal(t, "degraded", m.Stats()[0].Status)
}

func TestNoProviders(t *testing.T) {
	m := ai.NewMultiProvider("openai", "gemini", nil, nop())
	_, err := m.Chat(context.Background(), adapter.ChatRequest{})
	require.ErrorIs(t, err, domain.ErrNoProvider)
	assert.True(t, domain.IsPermanent(err))
}

type slowClient struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *slowClient) Chat(ctx context.Context, req adapter.ChatRequest) (*adapter.ChatResponse, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return &adapter.ChatResponse{}, nil
}

func TestLimitedBoundsConcurrency(t *testing.T) {
	inner := &slowClient{}
	l := ai.NewLimited(inner, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Chat(context.Background(), adapter.ChatRequest{})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.maxSeen, 2)
}

func TestLimitedHonoursContext(t *testing.T) {
	l := ai.NewLimited(&slowClient{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// the slot may still be free, so only a waiting caller observes ctx
	_, err := l.Chat(ctx, adapter.ChatRequest{})
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestCost(t *testing.T) {
	u := adapter.Usage{PromptTokens: 1000, CompletionTokens: 1000}
	assert.InDelta(t, 0.00075, ai.Cost("gpt-4o-mini-2024-07-18", u), 1e-9)
	assert.InDelta(t, 0.0125, ai.Cost("gpt-4o", u), 1e-9)
	assert.InDelta(t, 0.02, ai.Cost("mystery-model", u), 1e-9)
}
