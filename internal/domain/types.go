// Package domain defines the shared contracts of the support engine:
// decisions, evaluation checks, classification output, pipeline results,
// persistence records, and the collaborator interfaces the pipeline
// orchestrator depends on.
package domain

import "time"

// Decision is the terminal outcome of evaluating a reply.
type Decision string

const (
	DecisionSend     Decision = "send"
	DecisionDraft    Decision = "draft"
	DecisionEscalate Decision = "escalate"

	// DecisionRefine is only legal as an intermediate value on the first
	// attempt in team mode. It is never returned to the caller.
	DecisionRefine Decision = "refine"
)

// Confidence expresses how certain an evaluation is about its decision.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Urgency is the classifier's priority assessment of an inbound message.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Check is a single named evaluation check backing a Decision.
type Check struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Detail string  `json:"detail,omitempty"`
}

// Classification is the structured output of the message classifier.
type Classification struct {
	Primary          Category `json:"primary"`
	Secondary        Category `json:"secondary,omitempty"`
	Urgency          Urgency  `json:"urgency"`
	Email            string   `json:"email,omitempty"`
	Sentiment        string   `json:"sentiment,omitempty"`
	EscalationSignal bool     `json:"escalation_signal,omitempty"`
}

// OutstandingResult is the structured output of the outstanding-case detector.
type OutstandingResult struct {
	IsOutstanding bool       `json:"is_outstanding"`
	Trigger       string     `json:"trigger"`
	Confidence    Confidence `json:"confidence"`
}

// EvalResult is the evaluation gate's verdict on an assembled reply.
type EvalResult struct {
	Decision       Decision   `json:"decision"`
	Confidence     Confidence `json:"confidence"`
	Checks         []Check    `json:"checks,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`

	// Feedback carries revision guidance when the QA gate decides refine.
	Feedback string `json:"feedback,omitempty"`
}

// JudgeRequest is the input submitted to the semantic judge (Tier 2).
type JudgeRequest struct {
	Message        string
	Reply          string
	Category       Category
	IsOutstanding  bool
	ToolsAvailable []string

	// QA-mode fields.
	Attempt          int
	PreviousFeedback string
}

// JudgeVerdict is the parsed output of the semantic judge.
type JudgeVerdict struct {
	Decision   Decision   `json:"decision"`
	Confidence Confidence `json:"confidence"`
	Checks     []Check    `json:"checks"`
	Feedback   string     `json:"feedback,omitempty"`
}

// ContactInfo is caller-supplied identity for the inbound message.
type ContactInfo struct {
	Email string
	Name  string
}

// HistoryTurn is a single turn of prior conversation, most-recent-last.
type HistoryTurn struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// CustomerProfile is the stored profile for a known customer email.
type CustomerProfile struct {
	Email           string
	Name            string
	SubscriptionRef string
	JoinedAt        time.Time
}

// PipelineResult is the immutable result returned by the orchestrator.
type PipelineResult struct {
	Response   string         `json:"response"`
	SessionID  string         `json:"session_id"`
	Category   Category       `json:"category"`
	Decision   Decision       `json:"decision"`
	Confidence Confidence     `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SessionRecord is the session upsert row, keyed by SessionID.
type SessionRecord struct {
	SessionID           string
	ConversationID      string
	Channel             string
	CustomerEmail       string
	CustomerName        string
	PrimaryCategory     Category
	SecondaryCategory   Category
	Urgency             Urgency
	Status              string
	EvalDecision        Decision
	FirstResponseTimeMS int64
}

// MessageRecord is one stored conversation turn.
type MessageRecord struct {
	SessionID        string
	Role             string
	Content          string
	ModelUsed        string
	ProcessingTimeMS int64
}

// EvalRecord is the stored evaluation outcome for a processed message.
type EvalRecord struct {
	SessionID          string
	Category           Category
	SecondaryCategory  Category
	Decision           Decision
	Confidence         Confidence
	OverrideReason     string
	Checks             []Check
	IsOutstanding      bool
	OutstandingTrigger string
	Attempts           int
}
