package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
)

// Generator drafts reply bodies using the per-category generation model. The
// system prompt carries the brand voice plus category-specific guidance; the
// caller supplies the fully-built generation input.
type Generator struct {
	client *Client
	logger *slog.Logger
}

var _ domain.ReplyGenerator = (*Generator)(nil)

// NewGenerator creates a reply generator backed by the shared client.
func NewGenerator(client *Client, logger *slog.Logger) *Generator {
	return &Generator{client: client, logger: logger}
}

var baseGeneratorRules = []string{
	"You are a support agent for Lev Haolam, an Israel-based subscription box company.",
	"Write the body of a reply to the customer message below.",
	"Be professional, empathetic, and warm. Never robotic, never dismissive.",
	"",
	"HARD RULES:",
	"- NEVER confirm that a subscription was cancelled, paused, or suspended.",
	"- NEVER confirm that a refund was processed, issued, or approved.",
	"- NEVER promise a specific remedy (replacement, reshipment, refund, credit).",
	"- Cancellation requests must be redirected to the cancellation page.",
	"- Do not invent tracking numbers, dates, or order details.",
	"",
	"Do not add a greeting line or a sign-off; those are added separately.",
	"Plain text with <br> line breaks only, no markdown.",
}

var categoryGuidance = map[domain.Category]string{
	domain.CategoryShipping:         "Focus on shipment status and delivery expectations. Offer to check tracking.",
	domain.CategoryPayment:          "Explain charges clearly. Billing disputes need human review, say our team will follow up.",
	domain.CategoryFrequencyChange:  "Acknowledge the requested frequency and confirm our team will apply the change.",
	domain.CategorySkipOrPause:      "Acknowledge the skip or pause request without confirming it happened. Our team confirms changes.",
	domain.CategoryRecipientChange:  "Collect or confirm the new recipient or address details.",
	domain.CategoryCustomization:    "Explain what can be customized in the box and how preferences are recorded.",
	domain.CategoryDamage:           "Apologize for the damage, ask for photos if none were provided, do not promise a specific remedy.",
	domain.CategoryGratitude:        "Thank the customer warmly and briefly. No upsell.",
	domain.CategoryRetentionPrimary: "Empathize, remind them of the mission and the families their support helps, then point to the cancellation page if they still wish to cancel.",
	domain.CategoryRetentionRepeat:  "They have asked before. Keep it short and respectful, point directly to the cancellation page.",
}

// Generate drafts a reply for a classified message. input is the pre-built
// generation context (name/email tags, history window, raw message).
func (g *Generator) Generate(ctx context.Context, category domain.Category, email, input string) (string, error) {
	cfg := domain.ConfigFor(category)

	parts := append([]string{}, baseGeneratorRules...)
	if guidance, ok := categoryGuidance[category]; ok {
		parts = append(parts, "", "CATEGORY GUIDANCE: "+guidance)
	}
	if email != "" {
		parts = append(parts, "", "Customer email for this conversation: "+email+".")
	}

	reply, err := g.client.complete(ctx, cfg.Model, strings.Join(parts, "\n"), input)
	if err != nil {
		return "", fmt.Errorf("generate reply for %s: %w", category, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("generate reply for %s: empty completion", category)
	}

	g.logger.Info("reply generated",
		slog.String("category", string(category)),
		slog.String("model", cfg.Model),
		slog.Int("length", len(reply)))
	return reply, nil
}
