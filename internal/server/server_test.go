package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/levhaolam/support-engine/internal/dedup"
	"github.com/levhaolam/support-engine/internal/domain"
	"github.com/levhaolam/support-engine/internal/pipeline"
)

// Stub pipeline collaborators: just enough to drive a real orchestrator
// through the HTTP layer.

type stubClassifier struct{}

func (stubClassifier) Classify(context.Context, string) (*domain.Classification, error) {
	return &domain.Classification{Primary: domain.CategoryShipping, Urgency: domain.UrgencyMedium}, nil
}

type stubNames struct{}

func (stubNames) ExtractName(_ context.Context, _, knownName string) (string, error) {
	if knownName != "" {
		return knownName, nil
	}
	return "Client", nil
}

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) Generate(context.Context, domain.Category, string, string) (string, error) {
	return g.reply, g.err
}

type stubOutstanding struct{}

func (stubOutstanding) Detect(context.Context, string, domain.Category) (*domain.OutstandingResult, error) {
	return &domain.OutstandingResult{IsOutstanding: false, Trigger: "none"}, nil
}

type stubGate struct {
	decision   domain.Decision
	confidence domain.Confidence
}

func (g *stubGate) Evaluate(context.Context, domain.JudgeRequest) *domain.EvalResult {
	return &domain.EvalResult{Decision: g.decision, Confidence: g.confidence}
}

type sentMessage struct {
	content string
	private bool
}

// fakeMessenger records every Chatwoot call for assertion.
type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	statuses []string
	labels   [][]string
	assigned []int
	err      error
}

func (m *fakeMessenger) SendMessage(_ context.Context, _ int, content string, private bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{content: content, private: private})
	return m.err
}

func (m *fakeMessenger) SetStatus(_ context.Context, _ int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return m.err
}

func (m *fakeMessenger) AddLabels(_ context.Context, _ int, labels []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels = append(m.labels, labels)
	return m.err
}

func (m *fakeMessenger) Assign(_ context.Context, _ int, agentID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigned = append(m.assigned, agentID)
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serverOptions struct {
	generator *stubGenerator
	gate      *stubGate
	messenger *fakeMessenger
	probe     func(ctx context.Context) error
}

func newTestServer(t *testing.T, opts serverOptions) (*Server, *fakeMessenger) {
	t.Helper()
	if opts.generator == nil {
		opts.generator = &stubGenerator{reply: "Your box ships Monday."}
	}
	if opts.gate == nil {
		opts.gate = &stubGate{decision: domain.DecisionSend, confidence: domain.ConfidenceHigh}
	}
	if opts.messenger == nil {
		opts.messenger = &fakeMessenger{}
	}

	orch, err := pipeline.New(pipeline.Config{
		Classifier:  stubClassifier{},
		Names:       stubNames{},
		Generator:   opts.generator,
		Outstanding: stubOutstanding{},
		Gate:        opts.gate,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	s, err := New(Config{
		Port:         0,
		Orchestrator: orch,
		Dispatcher:   NewDispatcher(opts.messenger, 0, testLogger()),
		Dedup:        dedup.New(),
		HealthProbe:  opts.probe,
		Logger:       testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, opts.messenger
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestHandleHealthHealthy(t *testing.T) {
	s, _ := newTestServer(t, serverOptions{probe: func(ctx context.Context) error { return nil }})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" || body["version"] != Version {
		t.Errorf("body = %v", body)
	}
}

func TestHandleHealthDegraded(t *testing.T) {
	s, _ := newTestServer(t, serverOptions{probe: func(ctx context.Context) error { return errors.New("db closed") }})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	services, _ := body["services"].(map[string]any)
	if services["database"] != "disconnected" {
		t.Errorf("services = %v", services)
	}
}
