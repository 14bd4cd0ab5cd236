package ats

import (
	"regexp"
	"strings"
)

var (
	commandRe  = regexp.MustCompile(`\\[a-zA-Z]+\*?(?:\[[^\]]*\])?`)
	commentRe  = regexp.MustCompile(`(?m)(^|[^\\])%.*$`)
	bracesRe   = regexp.MustCompile(`[{}\\]`)
	spaceRe    = regexp.MustCompile(`\s+`)
	sentenceRe = regexp.MustCompile(`[.!?]+`)
	jdWordRe   = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)
)

// ExtractText strips commands, comments and braces from document source.
// Command arguments are kept so section titles still count as text.
func ExtractText(source string) string {
	text := commentRe.ReplaceAllString(source, "$1")
	text = commandRe.ReplaceAllString(text, "")
	text = bracesRe.ReplaceAllString(text, "")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func countSentences(text string) int {
	n := 0
	for _, s := range sentenceRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

// jdKeywords returns up to limit distinct words longer than three letters, in
// first-seen order.
func jdKeywords(jd string, limit int) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, w := range jdWordRe.FindAllString(strings.ToLower(jd), -1) {
		if len(w) <= 3 || jdStopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == limit {
			break
		}
	}
	return out
}
