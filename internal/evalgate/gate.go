package evalgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/levhaolam/support-engine/internal/domain"
)

// Gate is the standard two-tier evaluation gate.
type Gate struct {
	judge  domain.SemanticJudge
	logger *slog.Logger
}

// New creates an evaluation gate backed by the given semantic judge.
func New(judge domain.SemanticJudge, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{judge: judge, logger: logger}
}

// Evaluate runs the reply through Tier 1 and, only if it passes, Tier 2.
// It never returns an error: judge failures degrade to a low-confidence
// draft so a human sees the reply instead of the customer.
func (g *Gate) Evaluate(ctx context.Context, req domain.JudgeRequest) *domain.EvalResult {
	if res := tierOne(req, unsafeReplyPatterns, g.logger); res != nil {
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
	}

	// The standard gate has no refine path; an out-of-set decision from the
	// judge is treated as unparseable-in-spirit and drafted.
	switch res.Decision {
	case domain.DecisionSend, domain.DecisionDraft, domain.DecisionEscalate:
	default:
		res.Decision = domain.DecisionDraft
		res.OverrideReason = fmt.Sprintf("unknown judge decision %q forced to draft", verdict.Decision)
	}

	applyOutstandingBias(res, req.IsOutstanding)

	g.logger.Info("eval gate complete",
		slog.String("decision", string(res.Decision)),
		slog.String("confidence", string(res.Confidence)),
		slog.Int("checks", len(res.Checks)))
	return res
}

// tierOne runs the deterministic scan. A hit yields a high-confidence draft
// with a single failing safety check; nil means the reply passed.
func tierOne(req domain.JudgeRequest, patterns []unsafePattern, logger *slog.Logger) *domain.EvalResult {
	violation, safe := fastSafetyCheck(req.Reply, patterns)
	if safe {
		return nil
	}
	logger.Warn("eval gate fast fail",
		slog.String("violation", violation),
		slog.String("category", string(req.Category)))
	return &domain.EvalResult{
		Decision:   domain.DecisionDraft,
		Confidence: domain.ConfidenceHigh,
		Checks: []domain.Check{{
			Name:   "safety",
			Passed: false,
			Score:  0.0,
			Detail: "pattern safety violation: " + violation,
		}},
		OverrideReason: "fast-fail pattern: " + violation,
	}
}

// applyOutstandingBias forces outstanding cases to draft unless the judge was
// highly confident about sending.
func applyOutstandingBias(res *domain.EvalResult, isOutstanding bool) {
	if isOutstanding && res.Decision == domain.DecisionSend && res.Confidence != domain.ConfidenceHigh {
		res.Decision = domain.DecisionDraft
		res.OverrideReason = "outstanding case with non-high confidence forced to draft"
	}
}

func judgeFailure(err error, logger *slog.Logger) *domain.EvalResult {
	var parseErr *domain.JudgeParseError
	if errors.As(err, &parseErr) {
		logger.Warn("judge output unparseable", slog.String("error", err.Error()))
		return &domain.EvalResult{
			Decision:       domain.DecisionDraft,
			Confidence:     domain.ConfidenceLow,
			OverrideReason: "parse error",
		}
	}
	logger.Error("judge call failed", slog.String("error", err.Error()))
	return &domain.EvalResult{
		Decision:       domain.DecisionDraft,
		Confidence:     domain.ConfidenceLow,
		OverrideReason: "judge error: " + err.Error(),
	}
}
