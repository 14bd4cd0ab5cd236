// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
	"github.com/sanskarpan/Latexy/internal/infra/metrics"
)

var _ adapter.LLMClient = (*MultiProvider)(nil)

// degradedAfter is the error count at which a provider reports degraded.
const degradedAfter = 5

// ProviderStats is the running usage of one provider.
type ProviderStats struct {
	Provider string  `json:"provider"`
	Requests int     `json:"requests"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
	Errors   int     `json:"errors"`
	Status   string  `json:"status"`
}

// MultiProvider routes a chat to one provider and, when that call fails,
// retries once on the fallback provider.
type MultiProvider struct {
	primary   string
	fallback  string
	providers map[string]adapter.LLMProvider

	mu    sync.Mutex
	stats map[string]*ProviderStats
	log   *zerolog.Logger
}

func NewMultiProvider(primary, fallback string, providers []adapter.LLMProvider, logger *zerolog.Logger) *MultiProvider {
	compLog := logger.With().Str("component", "MultiProvider").Logger()
	m := &MultiProvider{
		primary:   strings.ToLower(primary),
		fallback:  strings.ToLower(fallback),
		providers: make(map[string]adapter.LLMProvider, len(providers)),
		stats:     make(map[string]*ProviderStats, len(providers)),
		log:       &compLog,
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		m.providers[p.Name()] = p
		m.stats[p.Name()] = &ProviderStats{Provider: p.Name()}
	}
	return m
}

// Providers lists registered provider names, sorted.
func (m *MultiProvider) Providers() []string {
	out := make([]string, 0, len(m.providers))
	for name := range m.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// resolveProvider picks by model family, then the configured primary.
func (m *MultiProvider) resolveProvider(model string) string {
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		if _, ok := m.providers["gemini"]; ok {
			return "gemini"
		}
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		if _, ok := m.providers["openai"]; ok {
			return "openai"
		}
	}
	if _, ok := m.providers[m.primary]; ok {
		return m.primary
	}
	// last resort: first available
	if names := m.Providers(); len(names) > 0 {
		return names[0]
	}
	return ""
}

func (m *MultiProvider) fallbackFor(name string) string {
	if m.fallback != "" && m.fallback != name {
		if _, ok := m.providers[m.fallback]; ok {
			return m.fallback
		}
	}
	for _, other := range m.Providers() {
		if other != name {
			return other
		}
	}
	return ""
}

func (m *MultiProvider) Chat(ctx context.Context, req adapter.ChatRequest) (*adapter.ChatResponse, error) {
	name := m.resolveProvider(req.Model)
	if name == "" {
		return nil, domain.Permanent(domain.ErrNoProvider)
	}
	resp, err := m.call(ctx, name, req)
	if err == nil {
		return resp, nil
	}

	// a caller's own key belongs to one provider; never spend ours instead
	if req.APIKey != "" || ctx.Err() != nil {
		return nil, err
	}
	next := m.fallbackFor(name)
	if next == "" {
		return nil, err
	}
	m.log.Warn().Err(err).Str("from", name).Str("to", next).Msg("llm provider failed, falling back")
	metrics.IncFallback(name, next)

	retry := req
	retry.Model = "" // model names are provider specific
	resp, ferr := m.call(ctx, next, retry)
	if ferr != nil {
		return nil, fmt.Errorf("%w (fallback %s: %v)", err, next, ferr)
	}
	return resp, nil
}

func (m *MultiProvider) call(ctx context.Context, name string, req adapter.ChatRequest) (*adapter.ChatResponse, error) {
	p := m.providers[name]
	resp, err := p.Chat(ctx, req)

	model := modelOrDefault(req.Model, p.DefaultModel())
	m.mu.Lock()
	st := m.stats[name]
	st.Requests++
	if err != nil {
		st.Errors++
	} else {
		st.Tokens += resp.Usage.TotalTokens
		st.Cost += resp.Cost
	}
	m.mu.Unlock()

	if err != nil {
		metrics.ObserveChatUsage(name, model, 0, 0, 0, 0, false)
		return nil, err
	}
	metrics.ObserveChatUsage(name, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Cost, resp.Latency.Milliseconds(), true)
	return resp, nil
}

// Stats snapshots per-provider usage.
func (m *MultiProvider) Stats() []ProviderStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProviderStats, 0, len(m.stats))
	for _, st := range m.stats {
		cp := *st
		cp.Status = "healthy"
		if cp.Errors >= degradedAfter {
			cp.Status = "degraded"
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
