package domain

import (
	"math"
	"strings"
)

// EstimateTokens approximates a token count as one token per four
// characters of trimmed text. Empty or whitespace-only text is 0;
// anything non-empty is at least 1.
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	n := int(math.Round(float64(len(trimmed)) / 4.0))
	if n < 1 {
		return 1
	}
	return n
}

// NormalizeMeta fills in estimated token accounting for a message that
// was persisted without any. Counts that are already present are kept.
func NormalizeMeta(m *Message) {
	if m.Meta.TokenCount > 0 || m.Meta.TokenSource == TokenSourceProvider {
		return
	}
	m.Meta.TokenCount = EstimateTokens(m.Content)
	m.Meta.TokenSource = TokenSourceEstimated
}
