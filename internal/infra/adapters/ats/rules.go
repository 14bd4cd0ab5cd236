package ats

import "regexp"

// category weights for the overall score
var weights = []struct {
	name   string
	weight float64
}{
	{"formatting", 0.25},
	{"structure", 0.20},
	{"content", 0.25},
	{"keywords", 0.20},
	{"readability", 0.10},
}

var (
	unfriendlyPackages = []string{"tikz", "pgfplots", "graphicx", "includegraphics", "tabularx", "longtable", "multicol"}

	complexFormatting = regexp.MustCompile(`\\begin\{(table|figure|minipage)\}|\\multicolumn|\\multirow|\\includegraphics`)
	fontPackage       = regexp.MustCompile(`\\usepackage\{([^}]*font[^}]*)\}`)

	actionVerbs = []string{
		"achieved", "managed", "developed", "created", "implemented",
		"led", "improved", "increased", "reduced", "optimized",
		"designed", "built", "launched", "delivered", "executed",
	}

	quantifiable = []*regexp.Regexp{
		regexp.MustCompile(`\d+%`),
		regexp.MustCompile(`\$\d+`),
		regexp.MustCompile(`(?i)\d+\s*(million|thousand|k)`),
		regexp.MustCompile(`(?i)increased.*\d+`),
		regexp.MustCompile(`(?i)reduced.*\d+`),
		regexp.MustCompile(`(?i)improved.*\d+`),
	}

	techKeywords = []string{
		"python", "java", "javascript", "react", "node", "sql", "aws",
		"docker", "kubernetes", "git", "agile", "scrum", "api", "rest",
	}
	softSkills = []string{
		"leadership", "communication", "teamwork", "problem-solving",
		"analytical", "creative", "adaptable", "collaborative",
	}

	passiveWords  = map[string]bool{"was": true, "were": true, "been": true, "being": true}
	fillerWords   = map[string]bool{"very": true, "really": true, "quite": true, "rather": true, "somewhat": true}
	informalWords = map[string]bool{"awesome": true, "cool": true, "stuff": true, "things": true, "guys": true}
)

type section struct {
	name     string
	required bool
	patterns []*regexp.Regexp
}

var sections = []section{
	{"contact", true, patterns(`email`, `phone`, `@`, `\d{3}[-.]?\d{3}[-.]?\d{4}`)},
	{"experience", true, patterns(`experience`, `work`, `employment`, `career`)},
	{"education", true, patterns(`education`, `degree`, `university`, `college`, `school`)},
	{"summary", false, patterns(`summary`, `objective`, `profile`)},
	{"skills", false, patterns(`skills`, `competencies`, `technologies`)},
	{"achievements", false, patterns(`achievements`, `accomplishments`, `awards`)},
}

type industry struct {
	name     string
	keywords []string
}

// industryKeywords drive content scoring when the caller names an industry.
var industryKeywords = map[string][]string{
	"technology": {"software", "programming", "development", "coding", "algorithm", "database", "API", "cloud", "DevOps", "agile", "scrum"},
	"marketing":  {"campaign", "brand", "digital marketing", "SEO", "analytics", "conversion", "engagement", "social media", "content"},
	"finance":    {"financial", "accounting", "budget", "analysis", "investment", "risk", "compliance", "audit", "forecasting", "modeling"},
	"healthcare": {"patient", "clinical", "medical", "healthcare", "treatment", "diagnosis", "therapy", "pharmaceutical", "research"},
}

// industryIndicators are checked in order; the first hit wins.
var industryIndicators = []industry{
	{"technology", []string{"software", "programming", "development", "tech", "IT"}},
	{"finance", []string{"financial", "banking", "investment", "accounting"}},
	{"healthcare", []string{"medical", "healthcare", "clinical", "patient"}},
	{"marketing", []string{"marketing", "advertising", "brand", "campaign"}},
	{"sales", []string{"sales", "revenue", "client", "customer"}},
}

var problematicElements = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"tables", regexp.MustCompile(`\\begin\{table\}|\\begin\{tabular\}`)},
	{"graphics", regexp.MustCompile(`\\includegraphics|\\begin\{figure\}`)},
	{"complex formatting", regexp.MustCompile(`\\multicolumn|\\multirow`)},
	{"text boxes", regexp.MustCompile(`\\fbox|\\framebox`)},
	{"headers footers", regexp.MustCompile(`\\fancyhdr|\\pagestyle`)},
}

var jdStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "had": true, "her": true, "was": true,
	"one": true, "our": true, "out": true, "day": true, "get": true, "has": true,
	"him": true, "his": true, "how": true, "its": true, "may": true, "new": true,
	"now": true, "old": true, "see": true, "two": true, "who": true, "did": true,
	"she": true, "use": true, "way": true, "many": true, "with": true, "will": true,
	"this": true, "that": true, "have": true, "from": true, "your": true, "they": true,
}

var (
	requirementRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)required?:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)must have:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)essential:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)minimum:?\s*([^.]+)`),
	}
	preferredRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)preferred?:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)nice to have:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)bonus:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)plus:?\s*([^.]+)`),
	}
)

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}
