package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
)

const defaultName = "Client"

var nameRe = regexp.MustCompile(`^[A-Za-zÀ-ÿ'\-]{2,30}$`)

// NameExtractor resolves the customer's first name for personalization.
// Contact-provided names take a fast local path; otherwise a nano model reads
// the message signature.
type NameExtractor struct {
	client *Client
	logger *slog.Logger
}

var _ domain.NameExtractor = (*NameExtractor)(nil)

// NewNameExtractor creates a name extractor backed by the shared client.
func NewNameExtractor(client *Client, logger *slog.Logger) *NameExtractor {
	return &NameExtractor{client: client, logger: logger}
}

var nameSystem = strings.Join([]string{
	"Extract the customer's FIRST NAME from the message.",
	"Look for:",
	"- Signature at the end (e.g., 'Best, Sarah' or 'Thanks, John')",
	"- Self-introduction (e.g., 'My name is David' or 'This is Rachel')",
	"- Sign-off patterns (e.g., 'Regards, Michael')",
	"If no name is found, return 'Client'.",
	"Return only the first name, capitalized properly, never a full name.",
	`Respond with a JSON object: {"first_name": "..."}.`,
}, "\n")

// ExtractName returns the customer first name or "Client" when none can be
// determined. A plausible knownName short-circuits the model call.
func (e *NameExtractor) ExtractName(ctx context.Context, message, knownName string) (string, error) {
	if fields := strings.Fields(knownName); len(fields) > 0 {
		if name := cleanName(fields[0]); name != "" {
			return name, nil
		}
	}

	raw, err := e.client.completeJSON(ctx, nameModel, nameSystem, message)
	if err != nil {
		e.logger.Warn("name extraction failed", slog.String("error", err.Error()))
		return defaultName, nil
	}

	var out struct {
		FirstName string `json:"first_name"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		e.logger.Warn("name extraction returned invalid json", slog.String("error", err.Error()))
		return defaultName, nil
	}

	name := cleanName(out.FirstName)
	if name == "" || strings.EqualFold(name, defaultName) {
		return defaultName, nil
	}
	return name, nil
}

// cleanName validates and normalizes an extracted name, returning "" when the
// candidate is not a plausible first name.
func cleanName(raw string) string {
	name := strings.Trim(strings.TrimSpace(raw), `.,!?:;"'`)
	if !nameRe.MatchString(name) {
		return ""
	}
	r := []rune(name)
	return strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
}
