package latex

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

var lineRe = regexp.MustCompile(`^l\.(\d+)`)

// friendly names for the most common pdflatex failures
var knownErrors = []struct{ prefix, label string }{
	{"! Undefined control sequence", "Undefined command"},
	{"! Missing $ inserted", "Missing math mode delimiter"},
	{"! LaTeX Error:", "LaTeX error"},
	{"! Emergency stop", "Critical compilation error"},
}

// ParseLog extracts "! ..." error lines and the "l.N" line number that
// follows each of them.
func ParseLog(log string) []adapter.CompileError {
	var out []adapter.CompileError
	lines := strings.Split(log, "\n")
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if !strings.HasPrefix(line, "! ") {
			continue
		}
		ce := adapter.CompileError{Message: strings.TrimSpace(strings.TrimPrefix(line, "!"))}
		for j := i + 1; j < len(lines) && j <= i+8; j++ {
			if strings.HasPrefix(lines[j], "! ") {
				break
			}
			if m := lineRe.FindStringSubmatch(lines[j]); m != nil {
				ce.Line, _ = strconv.Atoi(m[1])
				break
			}
		}
		out = append(out, ce)
	}
	return out
}

// Summarize produces the one-line failure message stored on the job.
func Summarize(errs []adapter.CompileError, log string) string {
	if len(errs) == 0 {
		lines := strings.Split(strings.TrimSpace(log), "\n")
		if len(lines) > 10 {
			lines = lines[:10]
		}
		return strings.Join(lines, "\n")
	}
	first := errs[0]
	msg := first.Message
	for _, k := range knownErrors {
		if strings.HasPrefix("! "+first.Message, k.prefix) {
			msg = k.label + ": " + first.Message
			break
		}
	}
	if first.Line > 0 {
		msg += " (line " + strconv.Itoa(first.Line) + ")"
	}
	return msg
}
