package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
)

// Judge is the Tier-2 semantic evaluator: it scores an assembled reply on
// safety, tone, accuracy, and completeness and returns a decision. The QA
// variant additionally allows the refine decision with revision feedback.
type Judge struct {
	client *Client
	logger *slog.Logger
	system string
	qa     bool
}

var _ domain.SemanticJudge = (*Judge)(nil)

var judgeDimensions = []string{
	"Evaluate the AI response on four dimensions:",
	"",
	"1. SAFETY (most critical):",
	"   - NEVER confirms subscription cancellation (must redirect to cancel page)",
	"   - NEVER confirms pause directly (must redirect or get human confirmation)",
	"   - NEVER confirms refund processing (requires human approval)",
	"   - No sensitive data exposure",
	"   - If ANY safety rule is violated: decision MUST be 'draft' or 'escalate'",
	"",
	"2. TONE:",
	"   - Professional, empathetic, warm (Lev Haolam brand voice)",
	"   - Not robotic, not overly casual, not dismissive",
	"",
	"3. ACCURACY:",
	"   - Data matching available tool output (tracking numbers, dates, subscription details) is real",
	"   - No made-up information that did NOT come from a tool call",
	"",
	"4. COMPLETENESS:",
	"   - Addresses the customer's actual question",
	"   - Provides actionable next steps",
}

var judgeOutput = `Respond with a JSON object: {"decision": "...", "confidence": "...", ` +
	`"checks": [{"name": "...", "passed": true, "score": 0.0, "detail": "..."}], "feedback": "..."}.`

// NewJudge creates the standard semantic judge. Its decision set is send,
// draft, and escalate.
func NewJudge(client *Client, logger *slog.Logger) *Judge {
	parts := []string{
		"You are the final quality check before an AI response is sent to a customer.",
		"You work for Lev Haolam, an Israel-based subscription box company.",
		"",
	}
	parts = append(parts, judgeDimensions...)
	parts = append(parts,
		"",
		"DECISION RULES:",
		"- 'send': All checks pass with score >= 0.7, safety >= 0.9",
		"- 'draft': Any check fails (score < 0.7) OR safety < 0.9",
		"- 'escalate': Critical safety violation OR customer needs human handoff",
		"",
		judgeOutput,
	)
	return &Judge{client: client, logger: logger, system: strings.Join(parts, "\n")}
}

// NewQAJudge creates the QA-mode judge used in team mode. It may additionally
// decide refine on the first attempt, with concrete revision feedback.
func NewQAJudge(client *Client, logger *slog.Logger) *Judge {
	parts := []string{
		"You are the QA gate, the final quality check before an AI response is sent to a customer.",
		"You work for Lev Haolam, an Israel-based subscription box company.",
		"",
	}
	parts = append(parts, judgeDimensions...)
	parts = append(parts,
		"   - No raw database field names or technical placeholders",
		"",
		"DECISION RULES:",
		"- 'send': All checks pass with score >= 0.7, safety >= 0.9",
		"- 'refine': Response is close but needs specific improvement",
		"   You MUST provide detailed 'feedback' explaining what to fix",
		"- 'draft': Significant quality issues OR safety concern (needs human review)",
		"- 'escalate': Critical safety violation OR customer explicitly requests human",
		"",
		"Use 'refine' only on the FIRST attempt. On retry (attempt 2+),",
		"choose only 'send', 'draft', or 'escalate'.",
		"",
		judgeOutput,
	)
	return &Judge{client: client, logger: logger, system: strings.Join(parts, "\n"), qa: true}
}

// Judge evaluates an assembled reply. A *domain.JudgeParseError is returned
// when the model output cannot be decoded into a verdict.
func (j *Judge) Judge(ctx context.Context, req domain.JudgeRequest) (*domain.JudgeVerdict, error) {
	raw, err := j.client.completeJSON(ctx, judgeModel, j.system, j.buildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}

	var verdict domain.JudgeVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, &domain.JudgeParseError{Raw: raw, Err: err}
	}
	if verdict.Decision == "" {
		return nil, &domain.JudgeParseError{Raw: raw, Err: fmt.Errorf("missing decision")}
	}

	j.logger.Info("judge verdict",
		slog.String("decision", string(verdict.Decision)),
		slog.String("confidence", string(verdict.Confidence)),
		slog.Int("checks", len(verdict.Checks)))
	return &verdict, nil
}

func (j *Judge) buildPrompt(req domain.JudgeRequest) string {
	parts := []string{"CATEGORY: " + string(req.Category)}

	if req.IsOutstanding {
		parts = append(parts, "OUTSTANDING: true. Be extra strict. When in doubt, 'draft'.")
	}
	if len(req.ToolsAvailable) > 0 {
		parts = append(parts,
			"TOOLS AVAILABLE TO AGENT: "+strings.Join(req.ToolsAvailable, ", "),
			"The agent had access to these tools. Data in the response matching tool output should be considered accurate.")
	}
	if j.qa {
		parts = append(parts, fmt.Sprintf("ATTEMPT: %d", req.Attempt))
		if req.Attempt > 1 {
			parts = append(parts,
				"This is a RETRY attempt. The specialist was given feedback and re-generated.",
				"Do NOT use 'refine' again. Only 'send', 'draft', or 'escalate'.")
		}
		if req.PreviousFeedback != "" {
			parts = append(parts, "PREVIOUS QA FEEDBACK:\n"+req.PreviousFeedback)
		}
	}

	parts = append(parts,
		"\nCUSTOMER MESSAGE:\n"+req.Message,
		"\nAI RESPONSE TO EVALUATE:\n"+req.Reply)
	return strings.Join(parts, "\n")
}
