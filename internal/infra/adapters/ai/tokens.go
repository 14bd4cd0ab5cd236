package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

// perMessageOverhead approximates the chat framing tokens.
const perMessageOverhead = 4

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// CountTokens uses cl100k_base when the encoding can be loaded and a
// four-characters-per-token estimate otherwise.
func CountTokens(messages []adapter.Message) int {
	e := encoding()
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		if e != nil {
			total += len(e.Encode(m.Content, nil, nil))
			continue
		}
		total += estimateTokens(m.Content)
	}
	return total
}

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}
