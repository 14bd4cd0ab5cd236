package adapter

import "context"

type ScoreRequest struct {
	Source         string
	JobDescription string
	Industry       string
}

type ScoreOutput struct {
	OverallScore     float64            `json:"overall_score"`
	CategoryScores   map[string]float64 `json:"category_scores"`
	Recommendations  []string           `json:"recommendations"`
	Warnings         []string           `json:"warnings"`
	Strengths        []string           `json:"strengths"`
	DetailedAnalysis map[string]any     `json:"detailed_analysis,omitempty"`
}

type JobDescriptionAnalysis struct {
	Keywords         []string `json:"keywords"`
	Requirements     []string `json:"requirements"`
	Preferred        []string `json:"preferred_qualifications"`
	DetectedIndustry string   `json:"detected_industry"`
	WordCount        int      `json:"word_count"`
	SentenceCount    int      `json:"sentence_count"`
}

// Scorer rates a resume for applicant tracking system compatibility.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (*ScoreOutput, error)
	AnalyzeJobDescription(ctx context.Context, jobDescription string) (*JobDescriptionAnalysis, error)
}
