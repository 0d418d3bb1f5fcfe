package compactor

import (
	"math"
	"strings"
)

// EstimateTokens returns an approximate token count using a whitespace heuristic.
// Splits on whitespace, applies a 1.3x subword expansion factor (rounded up).
// Not a real tokenizer: within ~20% of BPE counts, enough to keep embedding
// requests under a provider's per-request token budget.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	words := len(strings.Fields(s))
	return int(math.Ceil(float64(words) * 1.3))
}

// EstimateTotal sums EstimateTokens over texts.
func EstimateTotal(texts []string) int {
	n := 0
	for _, t := range texts {
		n += EstimateTokens(t)
	}
	return n
}
