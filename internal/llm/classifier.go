package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
)

// Classifier assigns inbound messages to support categories using a small,
// fast model with structured output.
type Classifier struct {
	client *Client
	logger *slog.Logger
	system string
}

var _ domain.Classifier = (*Classifier)(nil)

// NewClassifier creates a classifier backed by the shared client.
func NewClassifier(client *Client, logger *slog.Logger) *Classifier {
	cats := make([]string, 0, len(domain.ValidCategories()))
	for _, c := range domain.ValidCategories() {
		cats = append(cats, string(c))
	}
	catList := strings.Join(cats, ", ")

	system := strings.Join([]string{
		"You are a message classifier for Lev Haolam customer support.",
		"Classify the customer message into exactly one primary category.",
		"Valid categories: " + catList + ".",
		"If the message contains multiple intents, set the secondary category.",
		"Extract customer email if present in the message.",
		"Set urgency based on:",
		"- critical: death threats, bank disputes, legal threats",
		"- high: damaged items, repeated cancellation requests",
		"- medium: most requests (default)",
		"- low: gratitude, simple questions",
		"",
		"Analyze sentiment: positive, neutral, negative, or frustrated",
		"(angry, repeated issue, excessive caps, multiple exclamation marks).",
		"",
		"Set escalation_signal=true if the customer explicitly asks for a human",
		"('manager', 'supervisor', 'live person', 'human agent'), shows extreme",
		"frustration after failed attempts, or uses threatening language.",
		"",
		"If unclear, default to " + string(domain.DefaultCategory) + " with medium urgency.",
		"",
		`Respond with a JSON object: {"primary": "...", "secondary": "...", ` +
			`"urgency": "...", "email": "...", "sentiment": "...", "escalation_signal": false}.`,
		"Omit secondary and email when absent. No extra text.",
	}, "\n")

	return &Classifier{client: client, logger: logger, system: system}
}

// Classify returns the structured classification for a message. The returned
// Primary is always in the valid set; out-of-set model output is corrected to
// the default category here.
func (c *Classifier) Classify(ctx context.Context, message string) (*domain.Classification, error) {
	raw, err := c.client.completeJSON(ctx, classifierModel, c.system, message)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	var out domain.Classification
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("classify: decode output: %w", err)
	}

	if !domain.IsValidCategory(out.Primary) {
		c.logger.Warn("classifier returned invalid category",
			slog.String("category", string(out.Primary)))
		out.Primary = domain.DefaultCategory
	}
	if out.Secondary != "" && !domain.IsValidCategory(out.Secondary) {
		out.Secondary = ""
	}
	switch out.Urgency {
	case domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyHigh, domain.UrgencyCritical:
	default:
		out.Urgency = domain.UrgencyMedium
	}

	c.logger.Info("message classified",
		slog.String("primary", string(out.Primary)),
		slog.String("secondary", string(out.Secondary)),
		slog.String("urgency", string(out.Urgency)))
	return &out, nil
}
