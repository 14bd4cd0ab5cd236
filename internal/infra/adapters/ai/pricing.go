package ai

import (
	"strings"

	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

// price is USD per 1k tokens.
type price struct {
	in, out float64
}

// Longest matching prefix wins.
var priceTable = map[string]price{
	"gpt-4o-mini":      {0.00015, 0.0006},
	"gpt-4o":           {0.0025, 0.01},
	"gpt-4-turbo":      {0.01, 0.03},
	"gpt-4":            {0.03, 0.06},
	"gpt-3.5-turbo":    {0.0005, 0.0015},
	"gemini-1.5-flash": {0.000075, 0.0003},
	"gemini-1.5-pro":   {0.00125, 0.005},
	"gemini-2.0-flash": {0.0001, 0.0004},
}

// fallbackPrice applies to models missing from the table.
var fallbackPrice = price{0.005, 0.015}

func priceFor(model string) price {
	model = strings.ToLower(model)
	best, bestLen := fallbackPrice, 0
	for prefix, p := range priceTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	return best
}

// Cost estimates the USD cost of one call.
func Cost(model string, u adapter.Usage) float64 {
	p := priceFor(model)
	return float64(u.PromptTokens)/1000*p.in + float64(u.CompletionTokens)/1000*p.out
}
