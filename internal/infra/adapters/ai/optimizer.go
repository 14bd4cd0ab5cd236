package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

var _ adapter.ResumeOptimizer = (*Optimizer)(nil)

const systemPrompt = "You are an expert resume optimizer specializing in ATS-friendly LaTeX resumes. " +
	"You help job seekers optimize their resumes for specific job descriptions while maintaining professional formatting."

var levelInstructions = map[string]string{
	"conservative": "Make minimal changes, only adding missing keywords where they naturally fit.",
	"balanced":     "Make moderate improvements to content and structure while maintaining the original style.",
	"aggressive":   "Significantly restructure and enhance the resume to maximize ATS compatibility and job relevance.",
}

// Optimizer asks the LLM for a rewritten document and parses its JSON answer.
type Optimizer struct {
	llm         adapter.LLMClient
	maxTokens   int
	temperature float64
	log         *zerolog.Logger
}

func NewOptimizer(llm adapter.LLMClient, maxTokens int, temperature float64, logger *zerolog.Logger) *Optimizer {
	compLog := logger.With().Str("component", "Optimizer").Logger()
	return &Optimizer{llm: llm, maxTokens: maxTokens, temperature: temperature, log: &compLog}
}

type optimizationReply struct {
	OptimizedLatex string   `json:"optimized_latex"`
	Changes        []change `json:"changes"`
	Warnings       []string `json:"warnings"`
	Summary        string   `json:"summary"`
}

type change struct {
	Section    string `json:"section"`
	ChangeType string `json:"change_type"`
	Reason     string `json:"reason"`
}

func (c change) String() string {
	section := c.Section
	if section == "" {
		section = "Unknown"
	}
	kind := c.ChangeType
	if kind == "" {
		kind = "modified"
	}
	if c.Reason == "" {
		return fmt.Sprintf("%s (%s)", section, kind)
	}
	return fmt.Sprintf("%s (%s): %s", section, kind, c.Reason)
}

func (o *Optimizer) Optimize(ctx context.Context, in adapter.OptimizeInput) (*adapter.OptimizeOutput, error) {
	keywords := ExtractKeywords(in.JobDescription)
	messages := []adapter.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(in, keywords)},
	}

	resp, err := o.llm.Chat(ctx, adapter.ChatRequest{
		Messages:    messages,
		Model:       in.Model,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		APIKey:      in.APIKey,
	})
	if err != nil {
		return nil, err
	}

	reply, err := parseReply(resp.Content)
	if err != nil {
		o.log.Warn().Err(err).Str("provider", resp.Provider).Msg("unparseable optimization reply")
		return nil, err
	}

	out := &adapter.OptimizeOutput{
		OptimizedLatex: reply.OptimizedLatex,
		Warnings:       reply.Warnings,
		Summary:        reply.Summary,
		TokensUsed:     resp.Usage.TotalTokens,
		Provider:       resp.Provider,
		Model:          resp.Model,
		Cost:           resp.Cost,
	}
	if out.OptimizedLatex == "" {
		out.OptimizedLatex = in.Source
		out.Warnings = append(out.Warnings, "model returned no document; original kept")
	}
	if out.TokensUsed == 0 {
		out.TokensUsed = CountTokens(messages) + CountTokens([]adapter.Message{{Content: resp.Content}})
	}
	for _, c := range reply.Changes {
		out.Changes = append(out.Changes, c.String())
	}
	out.KeywordsAdded = addedKeywords(in.Source, out.OptimizedLatex, keywords)
	return out, nil
}

func buildPrompt(in adapter.OptimizeInput, keywords []string) string {
	level := in.OptimizationLevel
	instr, ok := levelInstructions[level]
	if !ok {
		level, instr = "balanced", levelInstructions["balanced"]
	}
	if len(keywords) > 20 {
		keywords = keywords[:20]
	}
	var b strings.Builder
	b.WriteString("Please optimize the following LaTeX resume for the given job description.\n\n")
	fmt.Fprintf(&b, "OPTIMIZATION LEVEL: %s\nINSTRUCTIONS: %s\n\n", level, instr)
	fmt.Fprintf(&b, "JOB DESCRIPTION:\n%s\n\n", in.JobDescription)
	fmt.Fprintf(&b, "CURRENT LATEX RESUME:\n%s\n\n", in.Source)
	b.WriteString("KEY REQUIREMENTS:\n")
	b.WriteString("1. Maintain valid LaTeX syntax\n")
	b.WriteString("2. Keep the professional formatting and structure\n")
	fmt.Fprintf(&b, "3. Incorporate relevant keywords naturally: %s\n", strings.Join(keywords, ", "))
	b.WriteString("4. Improve ATS compatibility\n")
	b.WriteString("5. Enhance content relevance to the job description\n\n")
	b.WriteString(`Respond with a JSON object: {"optimized_latex": "...", "changes": [{"section": "...", "change_type": "added|modified|removed", "reason": "..."}], "warnings": ["..."], "summary": "..."}`)
	b.WriteString("\n\nThe optimized LaTeX must be complete and compilable.")
	return b.String()
}

var errNoJSON = errors.New("no JSON object in model reply")

// parseReply tolerates code fences and prose around the JSON object.
func parseReply(content string) (*optimizationReply, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	var r optimizationReply
	if err := json.Unmarshal([]byte(content[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	return &r, nil
}

var (
	wordRe    = regexp.MustCompile(`[a-z][a-z0-9+#.]*[a-z0-9+#]|[a-z]`)
	stopWords = map[string]bool{
		"the": true, "and": true, "for": true, "with": true, "from": true, "about": true,
		"into": true, "through": true, "during": true, "before": true, "after": true,
		"above": true, "below": true, "between": true, "among": true, "this": true,
		"that": true, "these": true, "those": true, "are": true, "was": true, "were": true,
		"been": true, "being": true, "have": true, "has": true, "had": true, "does": true,
		"did": true, "will": true, "would": true, "could": true, "should": true, "you": true,
		"our": true, "your": true, "who": true, "what": true, "all": true, "can": true,
		"not": true, "but": true, "work": true, "team": true, "role": true, "join": true,
	}
)

// ExtractKeywords returns up to 50 distinct terms in first-seen order.
func ExtractKeywords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == 50 {
			break
		}
	}
	return out
}

func addedKeywords(before, after string, keywords []string) []string {
	b, a := strings.ToLower(before), strings.ToLower(after)
	out := []string{}
	for _, k := range keywords {
		if strings.Contains(a, k) && !strings.Contains(b, k) {
			out = append(out, k)
		}
	}
	return out
}
