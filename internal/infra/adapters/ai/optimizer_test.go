package ai

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

type cannedClient struct {
	content string
	last    adapter.ChatRequest
}

func (c *cannedClient) Chat(ctx context.Context, req adapter.ChatRequest) (*adapter.ChatResponse, error) {
	c.last = req
	return &adapter.ChatResponse{
		Content:  c.content,
		Model:    "gpt-4o-mini",
		Provider: "openai",
		Usage:    adapter.Usage{PromptTokens: 300, CompletionTokens: 120, TotalTokens: 420},
		Cost:     0.0002,
	}, nil
}

func newTestOptimizer(c adapter.LLMClient) *Optimizer {
	l := zerolog.Nop()
	return NewOptimizer(c, 2000, 0.3, &l)
}

func TestParseReplyToleratesFences(t *testing.T) {
	r, err := parseReply("Here you go:\n```json\n{\"optimized_latex\": \"\\\\section{A}\", \"summary\": \"ok\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, `\section{A}`, r.OptimizedLatex)
	assert.Equal(t, "ok", r.Summary)

	_, err = parseReply("sorry, I cannot help")
	require.ErrorIs(t, err, errNoJSON)

	_, err = parseReply("{not json}")
	require.Error(t, err)
}

func TestExtractKeywords(t *testing.T) {
	kw := ExtractKeywords("We need a Go and Kubernetes engineer. Experience with Node.js, C++ and the Kubernetes API.")
	assert.Contains(t, kw, "kubernetes")
	assert.Contains(t, kw, "node.js")
	assert.Contains(t, kw, "c++")
	assert.NotContains(t, kw, "the")
	assert.NotContains(t, kw, "and")
	// two-letter terms are dropped
	assert.NotContains(t, kw, "go")

	count := 0
	for _, k := range kw {
		if k == "kubernetes" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestOptimizeBuildsOutput(t *testing.T) {
	c := &cannedClient{content: `{"optimized_latex": "\\section{Skills} Kubernetes, Terraform",
		"changes": [{"section": "Skills", "change_type": "added", "reason": "job keywords"}, {}],
		"warnings": [], "summary": "Added infrastructure keywords"}`}
	o := newTestOptimizer(c)

	out, err := o.Optimize(context.Background(), adapter.OptimizeInput{
		Source:            `\section{Skills} Python`,
		JobDescription:    "Kubernetes and Terraform experience required",
		OptimizationLevel: "aggressive",
		APIKey:            "sk-user",
	})
	require.NoError(t, err)
	assert.Equal(t, `\section{Skills} Kubernetes, Terraform`, out.OptimizedLatex)
	assert.Equal(t, []string{"Skills (added): job keywords", "Unknown (modified)"}, out.Changes)
	assert.ElementsMatch(t, []string{"kubernetes", "terraform"}, out.KeywordsAdded)
	assert.Equal(t, 420, out.TokensUsed)
	assert.Equal(t, "openai", out.Provider)

	assert.Equal(t, "sk-user", c.last.APIKey)
	assert.Equal(t, 2000, c.last.MaxTokens)
	require.Len(t, c.last.Messages, 2)
	assert.Contains(t, c.last.Messages[1].Content, "OPTIMIZATION LEVEL: aggressive")
}

func TestOptimizeKeepsOriginalWhenDocumentMissing(t *testing.T) {
	o := newTestOptimizer(&cannedClient{content: `{"summary": "nothing to do"}`})
	out, err := o.Optimize(context.Background(), adapter.OptimizeInput{Source: "orig", JobDescription: "x"})
	require.NoError(t, err)
	assert.Equal(t, "orig", out.OptimizedLatex)
	assert.NotEmpty(t, out.Warnings)
}

func TestBuildPromptDefaultsToBalanced(t *testing.T) {
	p := buildPrompt(adapter.OptimizeInput{OptimizationLevel: "extreme"}, nil)
	assert.Contains(t, p, "OPTIMIZATION LEVEL: balanced")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 3, estimateTokens("abcdefghij"))
}
