package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/levhaolam/support-engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveSessionUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SaveSession(ctx, domain.SessionRecord{
		SessionID:       "sess_1",
		ConversationID:  "cw_99",
		Channel:         "widget",
		CustomerEmail:   "sarah@example.com",
		CustomerName:    "Sarah",
		PrimaryCategory: domain.CategoryShipping,
		Urgency:         domain.UrgencyMedium,
		Status:          "active",
		EvalDecision:    domain.DecisionSend,
	})
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// A later degraded run with blank identity fields must not erase them.
	err = s.SaveSession(ctx, domain.SessionRecord{
		SessionID:       "sess_1",
		Channel:         "widget",
		PrimaryCategory: domain.CategoryPayment,
		Urgency:         domain.UrgencyLow,
		Status:          "active",
		EvalDecision:    domain.DecisionDraft,
	})
	if err != nil {
		t.Fatalf("SaveSession upsert: %v", err)
	}

	var row struct {
		CustomerEmail   string `db:"customer_email"`
		CustomerName    string `db:"customer_name"`
		ConversationID  string `db:"conversation_id"`
		PrimaryCategory string `db:"primary_category"`
		EvalDecision    string `db:"eval_decision"`
	}
	err = s.db.Get(&row, `SELECT customer_email, customer_name, conversation_id, primary_category, eval_decision
FROM sessions WHERE session_id = ?`, "sess_1")
	if err != nil {
		t.Fatalf("read back session: %v", err)
	}

	if row.CustomerEmail != "sarah@example.com" || row.CustomerName != "Sarah" || row.ConversationID != "cw_99" {
		t.Errorf("identity fields blanked: %+v", row)
	}
	if row.PrimaryCategory != string(domain.CategoryPayment) || row.EvalDecision != string(domain.DecisionDraft) {
		t.Errorf("latest run fields not updated: %+v", row)
	}

	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM sessions`); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 1 {
		t.Errorf("sessions = %d, want 1 after upsert", count)
	}
}

func TestHistoryChronologicalOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, domain.SessionRecord{SessionID: "sess_h", Channel: "widget", Status: "active"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	turns := []domain.MessageRecord{
		{SessionID: "sess_h", Role: "user", Content: "first"},
		{SessionID: "sess_h", Role: "assistant", Content: "second"},
		{SessionID: "sess_h", Role: "user", Content: "third"},
	}
	for _, rec := range turns {
		if err := s.SaveMessage(ctx, rec); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	history, err := s.History(ctx, "sess_h")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	for i, want := range []string{"first", "second", "third"} {
		if history[i].Content != want {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Content, want)
		}
	}
	if history[1].Role != "assistant" {
		t.Errorf("history[1].Role = %q", history[1].Role)
	}
}

func TestHistoryEmptySession(t *testing.T) {
	s := newTestStore(t)

	history, err := s.History(context.Background(), "sess_none")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("len(history) = %d, want 0", len(history))
	}
}

func TestProfileUnknownCustomer(t *testing.T) {
	s := newTestStore(t)

	p, err := s.Profile(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p != nil {
		t.Errorf("profile = %+v, want nil for unknown customer", p)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	joined := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	err := s.UpsertCustomer(ctx, domain.CustomerProfile{
		Email:           "sarah@example.com",
		Name:            "Sarah",
		SubscriptionRef: "sub_42",
		JoinedAt:        joined,
	})
	if err != nil {
		t.Fatalf("UpsertCustomer: %v", err)
	}

	p, err := s.Profile(ctx, "sarah@example.com")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p == nil {
		t.Fatal("profile = nil")
	}
	if p.Name != "Sarah" || p.SubscriptionRef != "sub_42" {
		t.Errorf("profile = %+v", p)
	}

	// Blank fields on re-upsert keep the earlier values.
	if err := s.UpsertCustomer(ctx, domain.CustomerProfile{Email: "sarah@example.com"}); err != nil {
		t.Fatalf("UpsertCustomer: %v", err)
	}
	p, err = s.Profile(ctx, "sarah@example.com")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.SubscriptionRef != "sub_42" {
		t.Errorf("subscription ref blanked: %+v", p)
	}
}

func TestSaveEvalResultChecks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, domain.SessionRecord{SessionID: "sess_e", Channel: "widget", Status: "active"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	err := s.SaveEvalResult(ctx, domain.EvalRecord{
		SessionID:  "sess_e",
		Category:   domain.CategoryShipping,
		Decision:   domain.DecisionSend,
		Confidence: domain.ConfidenceHigh,
		Checks: []domain.Check{
			{Name: "safety", Passed: true, Score: 1.0},
		},
		Attempts: 1,
	})
	if err != nil {
		t.Fatalf("SaveEvalResult: %v", err)
	}

	var checks string
	if err := s.db.Get(&checks, `SELECT checks FROM eval_results WHERE session_id = ?`, "sess_e"); err != nil {
		t.Fatalf("read back checks: %v", err)
	}
	if checks == "" || checks == "null" {
		t.Errorf("checks not serialized: %q", checks)
	}
}

func TestUpdateOutstanding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, domain.SessionRecord{SessionID: "sess_o", Channel: "widget", Status: "active"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := s.UpdateOutstanding(ctx, "sess_o", true, "repeated_complaint", domain.DecisionDraft); err != nil {
		t.Fatalf("UpdateOutstanding: %v", err)
	}

	var row struct {
		IsOutstanding      bool   `db:"is_outstanding"`
		OutstandingTrigger string `db:"outstanding_trigger"`
		EvalDecision       string `db:"eval_decision"`
	}
	err := s.db.Get(&row, `SELECT is_outstanding, outstanding_trigger, eval_decision FROM sessions WHERE session_id = ?`, "sess_o")
	if err != nil {
		t.Fatalf("read back session: %v", err)
	}
	if !row.IsOutstanding || row.OutstandingTrigger != "repeated_complaint" || row.EvalDecision != string(domain.DecisionDraft) {
		t.Errorf("row = %+v", row)
	}
}

func TestOutstandingRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	global, specific, err := s.OutstandingRules(ctx, domain.CategoryShipping)
	if err != nil {
		t.Fatalf("OutstandingRules: %v", err)
	}
	if global != "" || specific != "" {
		t.Errorf("expected empty rules for fresh db, got (%q, %q)", global, specific)
	}

	if err := s.SetOutstandingRules(ctx, "global", "HARD: press or media mention."); err != nil {
		t.Fatalf("SetOutstandingRules: %v", err)
	}
	if err := s.SetOutstandingRules(ctx, string(domain.CategoryShipping), "SOFT: third late delivery."); err != nil {
		t.Fatalf("SetOutstandingRules: %v", err)
	}

	global, specific, err = s.OutstandingRules(ctx, domain.CategoryShipping)
	if err != nil {
		t.Fatalf("OutstandingRules: %v", err)
	}
	if global != "HARD: press or media mention." {
		t.Errorf("global = %q", global)
	}
	if specific != "SOFT: third late delivery." {
		t.Errorf("specific = %q", specific)
	}

	// Rules for other categories stay invisible.
	_, specific, err = s.OutstandingRules(ctx, domain.CategoryPayment)
	if err != nil {
		t.Fatalf("OutstandingRules: %v", err)
	}
	if specific != "" {
		t.Errorf("payment rules = %q, want empty", specific)
	}
}
