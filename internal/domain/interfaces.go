package domain

import "context"

// Classifier assigns an inbound message to a support category.
// Implementations must return an in-set Primary category; the pipeline
// additionally corrects out-of-set values to DefaultCategory.
type Classifier interface {
	Classify(ctx context.Context, message string) (*Classification, error)
}

// NameExtractor resolves the customer's first name for personalization.
// knownName, when non-empty, is contact info provided by the channel and
// takes precedence over anything found in the message.
type NameExtractor interface {
	ExtractName(ctx context.Context, message, knownName string) (string, error)
}

// ContextProvider supplies prior conversation turns and customer profiles.
type ContextProvider interface {
	// History returns prior turns for the session, most-recent-last.
	History(ctx context.Context, sessionID string) ([]HistoryTurn, error)
	// Profile returns the stored profile for an email, or nil if unknown.
	Profile(ctx context.Context, email string) (*CustomerProfile, error)
}

// ReplyGenerator drafts the reply body for a classified message.
type ReplyGenerator interface {
	Generate(ctx context.Context, category Category, email, input string) (string, error)
}

// OutstandingDetector decides whether a message is an outstanding
// (exceptional-handling) case.
type OutstandingDetector interface {
	Detect(ctx context.Context, message string, category Category) (*OutstandingResult, error)
}

// LinkGenerator produces customer-facing action links.
type LinkGenerator interface {
	// CancelLink returns a cancellation URL for the subscription, or ""
	// when no link can be generated.
	CancelLink(subscriptionRef, email string) (string, error)
}

// SemanticJudge is the Tier-2 evaluator behind the evaluation gate.
// A *JudgeParseError indicates structurally invalid judge output; any other
// error indicates the call itself failed.
type SemanticJudge interface {
	Judge(ctx context.Context, req JudgeRequest) (*JudgeVerdict, error)
}

// Store is the persistence collaborator. Every method upserts on its natural
// key and is safe to retry.
type Store interface {
	SaveSession(ctx context.Context, rec SessionRecord) error
	SaveMessage(ctx context.Context, rec MessageRecord) error
	SaveEvalResult(ctx context.Context, rec EvalRecord) error
	UpdateOutstanding(ctx context.Context, sessionID string, isOutstanding bool, trigger string, decision Decision) error
}

// Messenger is the outbound helpdesk client used by the webhook bridge to
// dispatch pipeline results. The pipeline core never calls it directly.
type Messenger interface {
	SendMessage(ctx context.Context, conversationID int, text string, private bool) error
	SetStatus(ctx context.Context, conversationID int, status string) error
	AddLabels(ctx context.Context, conversationID int, labels []string) error
	Assign(ctx context.Context, conversationID, agentID int) error
}
