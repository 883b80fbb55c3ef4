package pipeline

import (
	"time"

	"github.com/levhaolam/support-engine/internal/domain"
)

const maxAttempts = 2

// requestContext is the mutable per-request state threaded through every
// stage. It is owned exclusively by the orchestrator goroutine; the two
// fan-out points write disjoint fields and are joined before the next read.
type requestContext struct {
	// Input.
	message        string
	sessionID      string
	conversationID string
	contactEmail   string
	contactName    string
	channel        string
	teamMode       bool

	// Stage 1: safety.
	flagged     bool
	flagTrigger string

	// Stage 2: classification + name.
	classification *domain.Classification
	customerName   string

	// Stage 3: derived generation input.
	customerEmail string
	profile       *domain.CustomerProfile
	genInput      string

	// Stage 4: generation + outstanding.
	rawReply           string
	isOutstanding      bool
	outstandingTrigger string

	// Stage 6: evaluation.
	decision       domain.Decision
	confidence     domain.Confidence
	checks         []domain.Check
	overrideReason string
	qaFeedback     string

	// Retry bookkeeping. attempt is monotonic and bounded at maxAttempts.
	attempt int

	// Timing.
	start            time.Time
	processingTimeMS int64
}

func (c *requestContext) category() domain.Category {
	if c.classification == nil {
		return domain.CategoryUnknown
	}
	return c.classification.Primary
}

func (c *requestContext) elapsedMS() int64 {
	return time.Since(c.start).Milliseconds()
}
