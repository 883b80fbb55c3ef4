package evalgate

import (
	"context"
	"log/slog"

	"github.com/levhaolam/support-engine/internal/domain"
)

// QAGate is the team-mode evaluation gate. It shares the two-tier structure
// of Gate but allows a single refine decision on the first attempt, carrying
// feedback back to the generator, and widens Tier 1 with the damage-resolution
// patterns.
type QAGate struct {
	judge  domain.SemanticJudge
	logger *slog.Logger

	tierOnePatterns []unsafePattern
}

// NewQA creates a QA evaluation gate backed by the given semantic judge.
func NewQA(judge domain.SemanticJudge, logger *slog.Logger) *QAGate {
	if logger == nil {
		logger = slog.Default()
	}
	patterns := make([]unsafePattern, 0, len(unsafeReplyPatterns)+len(qaExtraPatterns))
	patterns = append(patterns, unsafeReplyPatterns...)
	patterns = append(patterns, qaExtraPatterns...)
	return &QAGate{judge: judge, logger: logger, tierOnePatterns: patterns}
}

// Evaluate runs the QA evaluation. req.Attempt must be 1 or 2; refine is only
// accepted from the judge on attempt 1 and is coerced to draft afterwards.
// Like Gate.Evaluate, it never returns an error.
func (g *QAGate) Evaluate(ctx context.Context, req domain.JudgeRequest) *domain.EvalResult {
	if res := tierOne(req, g.tierOnePatterns, g.logger); res != nil {
		return res
	}

	verdict, err := g.judge.Judge(ctx, req)
	if err != nil {
		return judgeFailure(err, g.logger)
	}

	res := &domain.EvalResult{
		Decision:   verdict.Decision,
		Confidence: verdict.Confidence,
		Checks:     verdict.Checks,
		Feedback:   verdict.Feedback,
	}

	switch res.Decision {
	case domain.DecisionSend, domain.DecisionDraft, domain.DecisionEscalate:
	case domain.DecisionRefine:
		if req.Attempt > 1 {
			res.Decision = domain.DecisionDraft
			res.OverrideReason = "refine not allowed on retry, forced to draft"
		}
	default:
		res.Decision = domain.DecisionDraft
		res.OverrideReason = "unknown judge decision forced to draft"
	}

	applyOutstandingBias(res, req.IsOutstanding)

	g.logger.Info("qa evaluation complete",
		slog.String("decision", string(res.Decision)),
		slog.String("confidence", string(res.Confidence)),
		slog.Int("attempt", req.Attempt),
		slog.Bool("has_feedback", res.Feedback != ""))
	return res
}
