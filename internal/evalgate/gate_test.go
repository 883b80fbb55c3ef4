package evalgate

import (
	"context"
	"errors"
	"testing"

	"github.com/levhaolam/support-engine/internal/domain"
)

// fakeJudge returns a canned verdict or error and counts calls.
type fakeJudge struct {
	verdict *domain.JudgeVerdict
	err     error
	calls   int
	lastReq domain.JudgeRequest
}

func (f *fakeJudge) Judge(_ context.Context, req domain.JudgeRequest) (*domain.JudgeVerdict, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.verdict, nil
}

func TestGateTierOneShortCircuits(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		violation string
	}{
		{"cancellation", "Good news, we have cancelled your subscription.", "confirmed_cancellation"},
		{"cancellation passive", "Your subscription has been canceled.", "confirmed_cancellation"},
		{"pause", "We paused your subscription as requested.", "confirmed_pause"},
		{"refund", "We have processed a refund to your card.", "confirmed_refund"},
		{"refund passive", "Your refund was approved today.", "confirmed_refund"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := &fakeJudge{verdict: &domain.JudgeVerdict{Decision: domain.DecisionSend, Confidence: domain.ConfidenceHigh}}
			g := New(judge, nil)

			res := g.Evaluate(context.Background(), domain.JudgeRequest{
				Message: "cancel my subscription",
				Reply:   tt.reply,
			})

			if judge.calls != 0 {
				t.Fatalf("judge called %d times on a Tier-1 hit, want 0", judge.calls)
			}
			if res.Decision != domain.DecisionDraft {
				t.Errorf("decision = %s, want draft", res.Decision)
			}
			if res.Confidence != domain.ConfidenceHigh {
				t.Errorf("confidence = %s, want high", res.Confidence)
			}
			if len(res.Checks) != 1 || res.Checks[0].Name != "safety" || res.Checks[0].Passed || res.Checks[0].Score != 0.0 {
				t.Errorf("unexpected checks: %+v", res.Checks)
			}
			if res.OverrideReason != "fast-fail pattern: "+tt.violation {
				t.Errorf("override reason = %q, want violation %q", res.OverrideReason, tt.violation)
			}
		})
	}
}

func TestGatePassesCleanReplyToJudge(t *testing.T) {
	judge := &fakeJudge{verdict: &domain.JudgeVerdict{
		Decision:   domain.DecisionSend,
		Confidence: domain.ConfidenceHigh,
		Checks:     []domain.Check{{Name: "safety", Passed: true, Score: 1.0}},
	}}
	g := New(judge, nil)

	res := g.Evaluate(context.Background(), domain.JudgeRequest{
		Message: "where is my box",
		Reply:   "Your box ships Monday.",
	})

	if judge.calls != 1 {
		t.Fatalf("judge calls = %d, want 1", judge.calls)
	}
	if res.Decision != domain.DecisionSend || res.Confidence != domain.ConfidenceHigh {
		t.Errorf("got (%s, %s), want (send, high)", res.Decision, res.Confidence)
	}
}

func TestGateOutstandingBias(t *testing.T) {
	tests := []struct {
		name       string
		confidence domain.Confidence
		want       domain.Decision
	}{
		{"high confidence send stands", domain.ConfidenceHigh, domain.DecisionSend},
		{"medium confidence forced to draft", domain.ConfidenceMedium, domain.DecisionDraft},
		{"low confidence forced to draft", domain.ConfidenceLow, domain.DecisionDraft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := &fakeJudge{verdict: &domain.JudgeVerdict{Decision: domain.DecisionSend, Confidence: tt.confidence}}
			g := New(judge, nil)

			res := g.Evaluate(context.Background(), domain.JudgeRequest{
				Reply:         "Your box ships Monday.",
				IsOutstanding: true,
			})
			if res.Decision != tt.want {
				t.Errorf("decision = %s, want %s", res.Decision, tt.want)
			}
		})
	}
}

func TestGateUnknownDecisionDrafted(t *testing.T) {
	judge := &fakeJudge{verdict: &domain.JudgeVerdict{Decision: "approve", Confidence: domain.ConfidenceHigh}}
	g := New(judge, nil)

	res := g.Evaluate(context.Background(), domain.JudgeRequest{Reply: "ok"})
	if res.Decision != domain.DecisionDraft {
		t.Errorf("decision = %s, want draft", res.Decision)
	}
	if res.OverrideReason == "" {
		t.Error("expected an override reason for unknown decision")
	}
}

func TestGateRefineFromStandardJudgeDrafted(t *testing.T) {
	// The standard gate has no refine path at all.
	judge := &fakeJudge{verdict: &domain.JudgeVerdict{Decision: domain.DecisionRefine, Confidence: domain.ConfidenceHigh}}
	g := New(judge, nil)

	res := g.Evaluate(context.Background(), domain.JudgeRequest{Reply: "ok"})
	if res.Decision != domain.DecisionDraft {
		t.Errorf("decision = %s, want draft", res.Decision)
	}
}

func TestGateJudgeParseError(t *testing.T) {
	judge := &fakeJudge{err: &domain.JudgeParseError{Raw: "not json", Err: errors.New("bad json")}}
	g := New(judge, nil)

	res := g.Evaluate(context.Background(), domain.JudgeRequest{Reply: "ok"})
	if res.Decision != domain.DecisionDraft || res.Confidence != domain.ConfidenceLow {
		t.Errorf("got (%s, %s), want (draft, low)", res.Decision, res.Confidence)
	}
	if res.OverrideReason != "parse error" {
		t.Errorf("override reason = %q, want %q", res.OverrideReason, "parse error")
	}
}

func TestGateJudgeCallError(t *testing.T) {
	judge := &fakeJudge{err: errors.New("connection refused")}
	g := New(judge, nil)

	res := g.Evaluate(context.Background(), domain.JudgeRequest{Reply: "ok"})
	if res.Decision != domain.DecisionDraft || res.Confidence != domain.ConfidenceLow {
		t.Errorf("got (%s, %s), want (draft, low)", res.Decision, res.Confidence)
	}
	if res.OverrideReason != "judge error: connection refused" {
		t.Errorf("override reason = %q", res.OverrideReason)
	}
}
