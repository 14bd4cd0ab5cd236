package ats

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

const strongResume = `\documentclass{article}
\usepackage{lmodern}
\begin{document}
\section{Summary}
Backend engineer. Email: jane@example.com, phone 555-123-4567.
\section{Experience}
\begin{itemize}
\item Led migration of the API to Kubernetes and reduced latency by 40\%.
\item Developed Python and SQL services handling 2 million requests.
\item Improved deployment time by 30\% with Docker and Git based pipelines.
\end{itemize}
\section{Education}
BSc Computer Science, State University.
\section{Skills}
Python, Java, AWS, Docker, Kubernetes, leadership, communication, teamwork.
\end{document}
`

func newTestScorer() *Scorer {
	l := zerolog.Nop()
	return NewScorer(&l)
}

func TestScoreWeightsAndCaps(t *testing.T) {
	out, err := newTestScorer().Score(context.Background(), adapter.ScoreRequest{Source: strongResume})
	require.NoError(t, err)

	require.Len(t, out.CategoryScores, 5)
	var want float64
	for _, w := range weights {
		want += out.CategoryScores[w.name] * w.weight
	}
	assert.InDelta(t, want, out.OverallScore, 0.05)
	assert.LessOrEqual(t, len(out.Recommendations), maxRecommendations)
	assert.LessOrEqual(t, len(out.Warnings), maxWarnings)
	assert.LessOrEqual(t, len(out.Strengths), maxStrengths)

	assert.Equal(t, 100.0, out.CategoryScores["formatting"])
	assert.Contains(t, out.Strengths, "Proper LaTeX document structure")
	assert.Contains(t, out.DetailedAnalysis, "ats_compatibility")
	assert.Contains(t, out.DetailedAnalysis, "keywords_analysis")
}

func TestScorePenalizesUnfriendlyMarkup(t *testing.T) {
	src := `\usepackage{tikz}\begin{table}\includegraphics{x}\end{table}`
	out, err := newTestScorer().Score(context.Background(), adapter.ScoreRequest{Source: src})
	require.NoError(t, err)

	// tikz and includegraphics, no document class, a table environment
	assert.Equal(t, 100.0-10-10-20-5, out.CategoryScores["formatting"])
	assert.Contains(t, out.Warnings, "Package 'tikz' may cause ATS parsing issues")

	compat := out.DetailedAnalysis["ats_compatibility"].(map[string]any)
	assert.Equal(t, 70, compat["compatibility_score"])
	assert.Equal(t, false, compat["ats_friendly"])

	prio := out.DetailedAnalysis["improvement_priority"].([]map[string]any)
	require.NotEmpty(t, prio)
	for i := 1; i < len(prio); i++ {
		assert.GreaterOrEqual(t, prio[i-1]["potential_impact"].(float64), prio[i]["potential_impact"].(float64))
	}
}

func TestScoreEmptyText(t *testing.T) {
	out, err := newTestScorer().Score(context.Background(), adapter.ScoreRequest{Source: `\documentclass{}`})
	require.NoError(t, err)
	assert.Zero(t, out.CategoryScores["keywords"])
	assert.Zero(t, out.CategoryScores["readability"])
}

func TestScoreJobDescriptionAlignment(t *testing.T) {
	s := newTestScorer()
	aligned, err := s.Score(context.Background(), adapter.ScoreRequest{
		Source:         strongResume,
		JobDescription: "Python Kubernetes Docker engineer",
		Industry:       "technology",
	})
	require.NoError(t, err)
	poor, err := s.Score(context.Background(), adapter.ScoreRequest{
		Source:         strongResume,
		JobDescription: "Registered nurse with phlebotomy certification and bedside manner",
	})
	require.NoError(t, err)
	assert.Greater(t, aligned.CategoryScores["content"], poor.CategoryScores["content"])
}

func TestScoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestScorer().Score(ctx, adapter.ScoreRequest{Source: strongResume})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractText(t *testing.T) {
	got := ExtractText("\\section{Experience} % a comment\nReduced cost by 40\\% \\textbf{fast}")
	assert.Equal(t, "Experience Reduced cost by 40% fast", got)
}

func TestAnalyzeJobDescription(t *testing.T) {
	jd := "We are hiring a software engineer. Required: 5 years of Go experience. " +
		"Must have: Kubernetes and Postgres. Preferred: Terraform knowledge. Nice to have: Rust."
	a, err := newTestScorer().AnalyzeJobDescription(context.Background(), jd)
	require.NoError(t, err)

	assert.Equal(t, "technology", a.DetectedIndustry)
	assert.Equal(t, len(strings.Fields(jd)), a.WordCount)
	assert.Equal(t, 5, a.SentenceCount)
	assert.Contains(t, a.Requirements, "5 years of Go experience")
	assert.Contains(t, a.Requirements, "Kubernetes and Postgres")
	assert.Contains(t, a.Preferred, "Terraform knowledge")
	assert.Contains(t, a.Preferred, "Rust")
	assert.LessOrEqual(t, len(a.Keywords), maxJDKeywords)
	assert.Contains(t, a.Keywords, "software")
	assert.NotContains(t, a.Keywords, "are")
}

func TestDetectIndustryDefaultsToGeneral(t *testing.T) {
	assert.Equal(t, "general", newTestScorer().detectIndustry("Looking for a chef with pastry skills"))
}
