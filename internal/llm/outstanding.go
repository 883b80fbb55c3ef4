package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
)

// OutstandingDetector decides whether a message is an outstanding case, one
// that needs special handling or human review before any automated send.
type OutstandingDetector struct {
	client *Client
	logger *slog.Logger
	rules  RuleSource
}

var _ domain.OutstandingDetector = (*OutstandingDetector)(nil)

// RuleSource supplies detection rules per category. Global rules apply to
// every category; a nil RuleSource means built-in guidance only.
type RuleSource interface {
	OutstandingRules(ctx context.Context, category domain.Category) (global, specific string, err error)
}

// NewOutstandingDetector creates a detector backed by the shared client.
func NewOutstandingDetector(client *Client, rules RuleSource, logger *slog.Logger) *OutstandingDetector {
	return &OutstandingDetector{client: client, rules: rules, logger: logger}
}

var outstandingBase = []string{
	"You are an Outstanding Case Detector for Lev Haolam customer support.",
	"Determine if a customer request is an OUTSTANDING case.",
	"Outstanding cases require special handling or human review.",
	"",
	"Analyze the customer message against the rules below.",
	"If ANY hard rule is triggered, is_outstanding MUST be true.",
	"If soft rules are triggered, use judgment based on severity.",
	"If no rules match, is_outstanding=false.",
	"",
	`Respond with a JSON object: {"is_outstanding": false, "trigger": "none", "confidence": "high"}.`,
	"trigger names the specific rule found, or 'none'.",
}

// Detect reports whether a message is an outstanding case for its category.
func (d *OutstandingDetector) Detect(ctx context.Context, message string, category domain.Category) (*domain.OutstandingResult, error) {
	system := d.buildSystem(ctx, category)

	raw, err := d.client.completeJSON(ctx, outstandingModel, system, message)
	if err != nil {
		return nil, fmt.Errorf("outstanding detection: %w", err)
	}

	var out domain.OutstandingResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("outstanding detection: decode output: %w", err)
	}
	if out.Trigger == "" {
		out.Trigger = "none"
	}

	d.logger.Info("outstanding detection complete",
		slog.Bool("is_outstanding", out.IsOutstanding),
		slog.String("trigger", out.Trigger),
		slog.String("confidence", string(out.Confidence)))
	return &out, nil
}

func (d *OutstandingDetector) buildSystem(ctx context.Context, category domain.Category) string {
	parts := append([]string{}, outstandingBase...)

	if d.rules != nil {
		global, specific, err := d.rules.OutstandingRules(ctx, category)
		if err != nil {
			d.logger.Error("outstanding rules load failed",
				slog.String("category", string(category)),
				slog.String("error", err.Error()))
			parts = append(parts, "", "Could not load rules. If in doubt, mark as outstanding.")
		} else {
			for _, rules := range []string{global, specific} {
				if strings.TrimSpace(rules) != "" {
					parts = append(parts, "", "OUTSTANDING RULES:", strings.TrimSpace(rules))
				}
			}
		}
	}

	return strings.Join(parts, "\n")
}
