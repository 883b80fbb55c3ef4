package server

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
)

// Dispatcher routes pipeline results back into Chatwoot conversations
// according to the decision: send goes out as a public reply, draft and
// escalate become private notes with labels for the human team.
type Dispatcher struct {
	messenger domain.Messenger
	// escalationAgentID receives escalated conversations; 0 leaves them
	// unassigned.
	escalationAgentID int
	logger            *slog.Logger
}

// NewDispatcher creates a dispatcher over the Chatwoot messenger.
func NewDispatcher(messenger domain.Messenger, escalationAgentID int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{messenger: messenger, escalationAgentID: escalationAgentID, logger: logger}
}

// Dispatch delivers a pipeline result. Delivery failures are logged, never
// returned: the result is already final and persisted.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID int, result *domain.PipelineResult, channel string) {
	// Email renders HTML natively; chat channels need plain text.
	text := result.Response
	if channel != "email" {
		text = stripHTML(text)
	}

	var err error
	switch result.Decision {
	case domain.DecisionSend:
		err = d.messenger.SendMessage(ctx, conversationID, text, false)

	case domain.DecisionDraft:
		note := fmt.Sprintf("**AI Draft (needs review)**\n\nCategory: %s\nConfidence: %s\n\n---\n\n%s",
			result.Category, result.Confidence, text)
		err = d.sendNote(ctx, conversationID, note, []string{"ai_draft", string(result.Category)})

	case domain.DecisionEscalate:
		note := fmt.Sprintf("**AI Escalation**\n\nCategory: %s\nReason: %s\n\n---\n\nAI draft:\n%s",
			result.Category, escalationReason(result), text)
		err = d.sendNote(ctx, conversationID, note,
			[]string{"ai_escalation", string(result.Category), "high_priority"})
		if err == nil && d.escalationAgentID != 0 {
			err = d.messenger.Assign(ctx, conversationID, d.escalationAgentID)
		}
	}

	if err != nil {
		d.logger.Error("chatwoot dispatch failed",
			slog.Int("conversation_id", conversationID),
			slog.String("decision", string(result.Decision)),
			slog.String("error", err.Error()))
	}
}

// HandleFailure notifies agents that the pipeline failed for a conversation.
func (d *Dispatcher) HandleFailure(ctx context.Context, conversationID int, reason string) {
	note := fmt.Sprintf("**AI Error:** Pipeline failed: %s\nPlease handle manually.", reason)
	if err := d.sendNote(ctx, conversationID, note, []string{"ai_error"}); err != nil {
		d.logger.Error("chatwoot failure note failed",
			slog.Int("conversation_id", conversationID),
			slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) sendNote(ctx context.Context, conversationID int, note string, labels []string) error {
	if err := d.messenger.SendMessage(ctx, conversationID, note, true); err != nil {
		return err
	}
	if err := d.messenger.SetStatus(ctx, conversationID, "open"); err != nil {
		return err
	}
	return d.messenger.AddLabels(ctx, conversationID, labels)
}

func escalationReason(result *domain.PipelineResult) string {
	for _, key := range []string{"escalation_reason", "error"} {
		if v, ok := result.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return "eval_gate"
}

var (
	htmlBreakRe    = regexp.MustCompile(`(?i)<br\s*/?>|</div>|</p>|</li>`)
	htmlTagRe      = regexp.MustCompile(`<[^>]+>`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
)

// stripHTML converts an HTML reply into plain text for chat display.
func stripHTML(text string) string {
	text = htmlBreakRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
