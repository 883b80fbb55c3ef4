package pipeline

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/levhaolam/support-engine/internal/domain"
)

const (
	// maxTurnChars caps each rendered history turn, counted in runes.
	maxTurnChars = 500
	// maxHistoryTokens bounds the whole history window.
	maxHistoryTokens = 1500

	feedbackHeader = "[QA FEEDBACK - please revise your response]"
	feedbackFooter = "[End QA Feedback]"
)

// PromptBuilder renders the generation input: customer tags, a token-bounded
// history window, and the raw message. Pure local computation.
type PromptBuilder struct {
	codec tokenizer.Codec
}

// NewPromptBuilder creates a builder using the o200k encoding shared by the
// generation models.
func NewPromptBuilder() (*PromptBuilder, error) {
	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		return nil, fmt.Errorf("get tokenizer codec: %w", err)
	}
	return &PromptBuilder{codec: codec}, nil
}

// Build assembles the generation input. History is windowed most-recent-first
// under the token budget, then rendered in chronological order.
func (b *PromptBuilder) Build(customerName, customerEmail string, history []domain.HistoryTurn, message string) string {
	parts := []string{fmt.Sprintf("[Customer Name: %s]", customerName)}
	if customerEmail != "" {
		parts = append(parts, fmt.Sprintf("[Customer Email: %s]", customerEmail))
	}

	if window := b.historyWindow(history); len(window) > 0 {
		parts = append(parts, "", "[Conversation History]")
		parts = append(parts, window...)
		parts = append(parts, "[End History]")
	}

	parts = append(parts, "", message)
	return strings.Join(parts, "\n")
}

// AppendFeedback appends a delimited QA feedback block to a previously built
// input for the team-mode retry pass.
func AppendFeedback(input, feedback string) string {
	return input + "\n\n" + feedbackHeader + "\n" + feedback + "\n" + feedbackFooter
}

// historyWindow renders turns newest-to-oldest until the token budget runs
// out, then reverses back to chronological order.
func (b *PromptBuilder) historyWindow(history []domain.HistoryTurn) []string {
	var selected []string
	budget := maxHistoryTokens
	for i := len(history) - 1; i >= 0; i-- {
		line := renderTurn(history[i])
		cost := b.countTokens(line)
		if cost > budget {
			break
		}
		budget -= cost
		selected = append(selected, line)
	}

	// Reverse into chronological order.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

func renderTurn(turn domain.HistoryTurn) string {
	role := "Customer"
	if turn.Role == "assistant" {
		role = "Agent"
	}
	content := turn.Content
	if r := []rune(content); len(r) > maxTurnChars {
		content = string(r[:maxTurnChars]) + "..."
	}
	return role + ": " + content
}

func (b *PromptBuilder) countTokens(text string) int {
	ids, _, err := b.codec.Encode(text)
	if err != nil {
		// Fall back to a conservative character-based estimate.
		return len(text) / 3
	}
	return len(ids)
}
