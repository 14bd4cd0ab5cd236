package ats

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

var _ adapter.Scorer = (*Scorer)(nil)

const (
	maxRecommendations = 10
	maxWarnings        = 5
	maxStrengths       = 5
)

// Scorer is a rule based applicant tracking system compatibility checker.
type Scorer struct {
	log *zerolog.Logger

	mu      sync.Mutex
	wordRes map[string]*regexp.Regexp
}

func NewScorer(logger *zerolog.Logger) *Scorer {
	compLog := logger.With().Str("component", "ATSScorer").Logger()
	return &Scorer{log: &compLog, wordRes: map[string]*regexp.Regexp{}}
}

// category accumulates the findings of one scoring pass.
type category struct {
	score           float64
	recommendations []string
	warnings        []string
	strengths       []string
	details         map[string]any
}

func newCategory() *category {
	return &category{score: 100, details: map[string]any{}}
}

func (c *category) penalize(points float64, warning string, recs ...string) {
	c.score -= points
	if warning != "" {
		c.warnings = append(c.warnings, warning)
	}
	c.recommendations = append(c.recommendations, recs...)
}

func (c *category) recommend(rec string) { c.recommendations = append(c.recommendations, rec) }
func (c *category) strength(s string)    { c.strengths = append(c.strengths, s) }

func (c *category) final() float64 { return math.Max(0, c.score) }

func (s *Scorer) Score(ctx context.Context, req adapter.ScoreRequest) (*adapter.ScoreOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := ExtractText(req.Source)

	cats := map[string]*category{
		"formatting":  s.formatting(req.Source),
		"structure":   s.structure(text),
		"content":     s.content(text, req.JobDescription, req.Industry),
		"keywords":    s.keywords(text),
		"readability": s.readability(text),
	}

	out := &adapter.ScoreOutput{
		CategoryScores:   make(map[string]float64, len(cats)),
		Recommendations:  []string{},
		Warnings:         []string{},
		Strengths:        []string{},
		DetailedAnalysis: map[string]any{},
	}
	var overall float64
	for _, w := range weights {
		c := cats[w.name]
		score := c.final()
		out.CategoryScores[w.name] = score
		overall += score * w.weight
		out.Recommendations = append(out.Recommendations, c.recommendations...)
		out.Warnings = append(out.Warnings, c.warnings...)
		out.Strengths = append(out.Strengths, c.strengths...)

		c.details["score"] = score
		out.DetailedAnalysis[w.name+"_analysis"] = c.details
	}
	out.OverallScore = math.Round(overall*10) / 10
	out.Recommendations = capList(out.Recommendations, maxRecommendations)
	out.Warnings = capList(out.Warnings, maxWarnings)
	out.Strengths = capList(out.Strengths, maxStrengths)
	out.DetailedAnalysis["ats_compatibility"] = compatibility(req.Source)
	out.DetailedAnalysis["improvement_priority"] = priorities(out.CategoryScores)

	s.log.Debug().Float64("score", out.OverallScore).Msg("ats scoring completed")
	return out, nil
}

func (s *Scorer) formatting(source string) *category {
	c := newCategory()
	found := 0
	for _, pkg := range unfriendlyPackages {
		if strings.Contains(source, pkg) {
			found++
			c.penalize(10, "Package '"+pkg+"' may cause ATS parsing issues",
				"Consider removing or replacing '"+pkg+"' package")
		}
	}
	hasClass := strings.Contains(source, `\documentclass`)
	if hasClass {
		c.strength("Proper LaTeX document structure")
	} else {
		c.penalize(20, "Missing document class declaration")
	}
	for _, m := range fontPackage.FindAllStringSubmatch(source, -1) {
		font := strings.ToLower(m[1])
		if strings.Contains(font, "comic") || strings.Contains(font, "script") || strings.Contains(font, "decorative") {
			c.penalize(15, "Font package '"+m[1]+"' may not be ATS-friendly")
		} else {
			c.strength("Uses standard font packages")
		}
	}
	if complexFormatting.MatchString(source) {
		c.penalize(5, "", "Simplify complex formatting for better ATS compatibility")
	}
	usesSections := strings.Contains(source, `\section`)
	if usesSections {
		c.strength("Uses clear section headers")
	}
	if strings.Contains(source, `\item`) {
		c.strength("Uses bullet points effectively")
	}
	c.details["unfriendly_packages_found"] = found
	c.details["has_proper_structure"] = hasClass
	c.details["uses_sections"] = usesSections
	return c
}

func (s *Scorer) structure(text string) *category {
	c := newCategory()
	found := map[string]bool{}
	for _, sec := range sections {
		ok := matchAny(sec.patterns, text)
		switch {
		case ok && sec.required:
			found[sec.name] = true
			c.strength("Contains " + sec.name + " section")
		case ok:
			c.strength("Includes " + sec.name + " section")
		case sec.required:
			found[sec.name] = false
			c.penalize(25, "Missing "+sec.name+" section", "Add a clear "+sec.name+" section")
		default:
			c.penalize(5, "", "Consider adding a "+sec.name+" section")
		}
	}
	words := len(strings.Fields(text))
	switch {
	case words < 200:
		c.penalize(20, "Resume content is too brief", "Expand resume content to 300-600 words")
	case words > 800:
		c.penalize(10, "", "Consider condensing resume content")
	default:
		c.strength("Appropriate content length")
	}
	c.details["sections_found"] = found
	c.details["word_count"] = words
	return c
}

func (s *Scorer) content(text, jobDescription, industryName string) *category {
	c := newCategory()

	verbs := s.present(text, actionVerbs)
	ratio := float64(len(verbs)) / float64(len(actionVerbs))
	switch {
	case ratio > 0.3:
		c.strength("Uses strong action verbs effectively")
	case ratio > 0.1:
		c.recommend("Include more action verbs to strengthen impact")
	default:
		c.penalize(15, "Lacks strong action verbs", "Add action verbs like 'achieved', 'managed', 'developed'")
	}

	quant := 0
	for _, re := range quantifiable {
		if re.MatchString(text) {
			quant++
		}
	}
	switch {
	case quant >= 3:
		c.strength("Includes quantifiable achievements")
	case quant >= 1:
		c.recommend("Add more quantifiable achievements")
	default:
		c.penalize(20, "Lacks quantifiable achievements", "Include specific numbers, percentages, and metrics")
	}

	industryFound := []string{}
	if kws, ok := industryKeywords[industryName]; ok {
		industryFound = s.present(text, kws)
		r := float64(len(industryFound)) / float64(len(kws))
		switch {
		case r > 0.4:
			c.strength("Strong " + industryName + " industry keyword presence")
		case r > 0.2:
			c.recommend("Include more " + industryName + " industry keywords")
		default:
			c.penalize(10, "", "Add relevant "+industryName+" industry keywords")
		}
	}

	var match float64
	if jobDescription != "" {
		kws := jdKeywords(jobDescription, 20)
		matched := s.present(text, kws)
		match = float64(len(matched)) / math.Max(float64(len(kws)), 1)
		switch {
		case match > 0.6:
			c.strength("Excellent job description keyword alignment")
		case match > 0.3:
			c.recommend("Improve keyword alignment with job description")
		default:
			c.penalize(15, "Poor keyword alignment with job description", "Include more keywords from the job description")
		}
	}

	c.details["action_verbs_found"] = verbs
	c.details["action_verb_ratio"] = ratio
	c.details["quantifiable_achievements"] = quant
	c.details["industry_keywords_found"] = industryFound
	c.details["job_match_ratio"] = match
	return c
}

func (s *Scorer) keywords(text string) *category {
	c := newCategory()
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		c.score = 0
		c.warnings = append(c.warnings, "No content found")
		c.recommend("Add content to analyze keywords")
		return c
	}

	freq := map[string]int{}
	unique := map[string]bool{}
	for _, w := range words {
		unique[w] = true
		if len(w) > 3 {
			freq[w]++
		}
	}
	stuffed := []string{}
	for w, n := range freq {
		if float64(n)/float64(len(words)) > 0.05 && n > 3 {
			stuffed = append(stuffed, w)
		}
	}
	sort.Strings(stuffed)
	if len(stuffed) > 0 {
		c.penalize(20, "Potential keyword stuffing detected", "Reduce repetition of overused keywords")
	} else {
		c.strength("Natural keyword distribution")
	}

	tech := s.present(text, techKeywords)
	switch {
	case len(tech) >= 5:
		c.strength("Rich technical keyword presence")
	case len(tech) >= 2:
		c.recommend("Consider adding more relevant technical keywords")
	default:
		c.penalize(10, "", "Include relevant technical skills and keywords")
	}

	soft := s.present(text, softSkills)
	if len(soft) >= 3 {
		c.strength("Good soft skills representation")
	} else {
		c.recommend("Include relevant soft skills")
	}

	c.details["word_count"] = len(words)
	c.details["unique_words"] = len(freq)
	c.details["stuffed_keywords"] = stuffed
	c.details["tech_keywords_found"] = tech
	c.details["soft_skills_found"] = soft
	c.details["keyword_density"] = float64(len(unique)) / float64(len(words))
	return c
}

func (s *Scorer) readability(text string) *category {
	c := newCategory()
	if strings.TrimSpace(text) == "" {
		c.score = 0
		c.warnings = append(c.warnings, "No content found")
		c.recommend("Add content to analyze readability")
		return c
	}
	sentences := countSentences(text)
	words := strings.Fields(text)
	avg := float64(len(words)) / math.Max(float64(sentences), 1)
	switch {
	case avg > 25:
		c.penalize(15, "Sentences are too long", "Use shorter, more concise sentences")
	case avg < 8:
		c.penalize(5, "", "Consider varying sentence length")
	default:
		c.strength("Appropriate sentence length")
	}

	var passive, filler, informal int
	for _, w := range words {
		lw := strings.ToLower(w)
		switch {
		case passiveWords[lw]:
			passive++
		case fillerWords[lw]:
			filler++
		case informalWords[lw]:
			informal++
		}
	}
	passiveRatio := float64(passive) / float64(len(words))
	if passiveRatio > 0.1 {
		c.penalize(10, "", "Reduce passive voice usage")
	} else {
		c.strength("Uses active voice effectively")
	}
	if float64(filler) > float64(len(words))*0.02 {
		c.penalize(5, "", "Remove unnecessary filler words")
	}
	if informal > 0 {
		c.penalize(10, "Contains informal language", "Use professional language throughout")
	} else {
		c.strength("Maintains professional tone")
	}

	c.details["sentence_count"] = sentences
	c.details["avg_sentence_length"] = avg
	c.details["passive_ratio"] = passiveRatio
	c.details["filler_word_count"] = filler
	c.details["informal_word_count"] = informal
	return c
}

// present returns the terms that appear in text as whole words.
func (s *Scorer) present(text string, terms []string) []string {
	out := []string{}
	for _, t := range terms {
		if s.wordRe(t).MatchString(text) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Scorer) wordRe(term string) *regexp.Regexp {
	s.mu.Lock()
	defer s.mu.Unlock()
	re, ok := s.wordRes[term]
	if !ok {
		re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		s.wordRes[term] = re
	}
	return re
}

func compatibility(source string) map[string]any {
	score := 100
	issues := []string{}
	for _, el := range problematicElements {
		if el.pattern.MatchString(source) {
			issues = append(issues, "Contains "+el.name+" which may cause ATS issues")
			score -= 15
		}
	}
	if score < 0 {
		score = 0
	}
	return map[string]any{
		"compatibility_score": score,
		"issues":              issues,
		"ats_friendly":        score >= 80,
	}
}

// priorities lists weak categories, biggest potential gain first.
func priorities(scores map[string]float64) []map[string]any {
	out := []map[string]any{}
	for _, w := range weights {
		score := scores[w.name]
		if score >= 70 {
			continue
		}
		priority := "medium"
		if score < 50 {
			priority = "high"
		}
		out = append(out, map[string]any{
			"category":         w.name,
			"current_score":    score,
			"priority":         priority,
			"potential_impact": 100 - score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i]["potential_impact"].(float64) > out[j]["potential_impact"].(float64)
	})
	return out
}

func matchAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func capList(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}
