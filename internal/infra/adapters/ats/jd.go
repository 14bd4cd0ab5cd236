package ats

import (
	"context"
	"regexp"
	"strings"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

const (
	maxJDKeywords     = 15
	maxJDRequirements = 10
)

func (s *Scorer) AnalyzeJobDescription(ctx context.Context, jd string) (*adapter.JobDescriptionAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &adapter.JobDescriptionAnalysis{
		Keywords:         jdKeywords(jd, maxJDKeywords),
		Requirements:     capList(captures(requirementRe, jd), maxJDRequirements),
		Preferred:        capList(captures(preferredRe, jd), maxJDRequirements),
		DetectedIndustry: s.detectIndustry(jd),
		WordCount:        len(strings.Fields(jd)),
		SentenceCount:    countSentences(jd),
	}, nil
}

func (s *Scorer) detectIndustry(jd string) string {
	for _, ind := range industryIndicators {
		if len(s.present(jd, ind.keywords)) > 0 {
			return ind.name
		}
	}
	return "general"
}

func captures(res []*regexp.Regexp, text string) []string {
	out := []string{}
	for _, re := range res {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v := strings.TrimSpace(m[1]); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
