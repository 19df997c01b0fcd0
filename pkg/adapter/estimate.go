package adapter

import (
	"strings"
	"unicode/utf8"

	"github.com/zen-systems/nexus/pkg/pricing"
)

// CharsPerToken is the fixed ratio used when a provider omits usage counts.
const CharsPerToken = 4

// EstimateTokens returns ceil(runes / CharsPerToken).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

func joinTurns(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

// meter builds the token usage for a parsed reply. Each missing count is
// estimated on its own; a zero completion count stands when the reply text
// is empty. A content-filtered reply is billed for its prompt only.
func meter(prompt, completion int, promptText, completionText string, finish FinishReason) pricing.UsageRecord {
	u := pricing.UsageRecord{PromptTokens: prompt, CompletionTokens: completion}
	if prompt <= 0 {
		u.PromptTokens = EstimateTokens(promptText)
		u.Estimated = true
	}
	if completion <= 0 && completionText != "" {
		u.CompletionTokens = EstimateTokens(completionText)
		u.Estimated = true
	}
	if u.CompletionTokens < 0 {
		u.CompletionTokens = 0
	}
	if finish == FinishContentFilter {
		u.CompletionTokens = 0
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}
