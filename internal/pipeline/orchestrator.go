// Package pipeline implements the support decision pipeline: an eight-stage
// orchestration that takes an inbound customer message to exactly one
// terminal decision (send, draft, or escalate) with a reply to match.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/levhaolam/support-engine/internal/assembler"
	"github.com/levhaolam/support-engine/internal/domain"
	"github.com/levhaolam/support-engine/internal/retention"
	"github.com/levhaolam/support-engine/internal/safety"
)

const (
	// DeflectionText is returned on the safety-flagged path.
	DeflectionText = "I'm connecting you with a support agent who can better assist you."

	// FailureText is returned when reply generation fails.
	FailureText = "I apologize, but I'm having trouble processing your request. " +
		"Let me connect you with a support agent."

	defaultCustomerName = "Client"
	defaultChannel      = "widget"
)

// Evaluator is the evaluation-gate contract the orchestrator drives at
// Stage 6. Implementations never fail; degraded verdicts come back as drafts.
type Evaluator interface {
	Evaluate(ctx context.Context, req domain.JudgeRequest) *domain.EvalResult
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Classifier  domain.Classifier
	Names       domain.NameExtractor
	Contexts    domain.ContextProvider
	Generator   domain.ReplyGenerator
	Outstanding domain.OutstandingDetector
	Links       domain.LinkGenerator
	Gate        Evaluator
	QAGate      Evaluator
	Store       domain.Store
	Logger      *slog.Logger

	// TeamMode enables specialist generation with the QA gate and its
	// bounded retry cycle, unless overridden per request.
	TeamMode bool
}

// Orchestrator sequences the support pipeline. One call to Process handles
// one inbound message; the orchestrator itself is stateless across requests
// except for the team-mode default, which config reloads may flip.
type Orchestrator struct {
	cfg      Config
	prompts  *PromptBuilder
	logger   *slog.Logger
	teamMode atomic.Bool
}

// New creates an orchestrator. Classifier, Names, Generator, Outstanding and
// Gate are required; the rest degrade gracefully when absent.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Classifier == nil || cfg.Names == nil || cfg.Generator == nil || cfg.Outstanding == nil {
		return nil, fmt.Errorf("classifier, name extractor, generator and outstanding detector are required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("evaluation gate is required")
	}
	if cfg.TeamMode && cfg.QAGate == nil {
		return nil, fmt.Errorf("qa gate is required in team mode")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	prompts, err := NewPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("create prompt builder: %w", err)
	}

	o := &Orchestrator{cfg: cfg, prompts: prompts, logger: cfg.Logger}
	o.teamMode.Store(cfg.TeamMode)
	return o, nil
}

// SetTeamMode switches the default generation mode at runtime, typically on a
// config reload. It is ignored when no QA gate is configured. Per-request
// overrides still take precedence.
func (o *Orchestrator) SetTeamMode(enabled bool) {
	if enabled && o.cfg.QAGate == nil {
		o.logger.Warn("team mode requested without a qa gate, ignoring")
		return
	}
	o.teamMode.Store(enabled)
}

// Request is one inbound message to process.
type Request struct {
	Message        string
	SessionID      string
	ConversationID string
	Contact        *domain.ContactInfo
	Channel        string

	// TeamMode overrides the orchestrator default when non-nil.
	TeamMode *bool
}

// Process runs the full pipeline. It never returns an error: every internal
// failure converts to an escalate result with the error in metadata.
func (o *Orchestrator) Process(ctx context.Context, req Request) (result *domain.PipelineResult) {
	rc := o.newRequestContext(req)

	// Nothing past Stage 1 may take the process down; a panic anywhere in
	// stages 2-6 degrades to the fixed pipeline-failure escalation. This
	// recover only covers the orchestrator goroutine, so the fan-out
	// branches at stages 2 and 4 each recover on their own.
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline panic",
				slog.String("session_id", rc.sessionID),
				slog.Any("panic", r))
			result = o.failureResult(rc, fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	o.logger.Info("pipeline start",
		slog.String("session_id", rc.sessionID),
		slog.Bool("team_mode", rc.teamMode))

	// Stage 1: safety. A flagged message never proceeds further.
	if res := o.checkSafety(rc); res != nil {
		return res
	}

	// Stage 2: classify + extract name, in parallel.
	o.classify(ctx, rc)

	// Stage 3: build the generation input.
	o.buildInput(ctx, rc)

	// Stage 4: generate reply + detect outstanding, in parallel.
	if res := o.runGeneration(ctx, rc); res != nil {
		return res
	}

	// Stage 5: post-process and assemble.
	o.postProcess(rc)

	// Stage 6: evaluate.
	o.evaluate(ctx, rc)

	// Team-mode retry: one bounded re-run of stages 4-6 with feedback.
	if rc.teamMode && rc.decision == domain.DecisionRefine && rc.attempt < maxAttempts {
		o.logger.Info("qa retry triggered",
			slog.String("session_id", rc.sessionID),
			slog.String("feedback", rc.qaFeedback))
		rc.attempt++
		rc.genInput = AppendFeedback(rc.genInput, rc.qaFeedback)

		if res := o.runGeneration(ctx, rc); res != nil {
			return res
		}
		o.postProcess(rc)
		o.evaluate(ctx, rc)
	}

	// Refine must never escape to the caller, whatever the gates did.
	if rc.decision == domain.DecisionRefine {
		rc.decision = domain.DecisionDraft
		rc.overrideReason = "refine coerced to draft at pipeline boundary"
	}

	rc.processingTimeMS = rc.elapsedMS()

	// Stage 7: best-effort persistence. Never changes the result.
	o.persist(ctx, rc)

	return o.buildResult(rc)
}

func (o *Orchestrator) newRequestContext(req Request) *requestContext {
	rc := &requestContext{
		message:        req.Message,
		sessionID:      req.SessionID,
		conversationID: req.ConversationID,
		channel:        req.Channel,
		teamMode:       o.teamMode.Load(),
		customerName:   defaultCustomerName,
		attempt:        1,
		start:          time.Now(),
	}
	if rc.sessionID == "" {
		rc.sessionID = "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if rc.channel == "" {
		rc.channel = defaultChannel
	}
	if req.Contact != nil {
		rc.contactEmail = req.Contact.Email
		rc.contactName = req.Contact.Name
	}
	if req.TeamMode != nil {
		rc.teamMode = *req.TeamMode
	}
	return rc
}

// checkSafety is Stage 1. It returns a terminal escalation for red-line
// messages and nil otherwise. It performs no external calls and never fails.
func (o *Orchestrator) checkSafety(rc *requestContext) *domain.PipelineResult {
	trigger, flagged := safety.CheckRedLines(rc.message)
	if !flagged {
		return nil
	}
	rc.flagged = true
	rc.flagTrigger = trigger
	o.logger.Warn("red line triggered",
		slog.String("session_id", rc.sessionID),
		slog.String("trigger", trigger))
	return &domain.PipelineResult{
		Response:   DeflectionText,
		SessionID:  rc.sessionID,
		Category:   domain.CategoryUnknown,
		Decision:   domain.DecisionEscalate,
		Confidence: domain.ConfidenceHigh,
		Metadata: map[string]any{
			"escalation_reason":  trigger,
			"processing_time_ms": rc.elapsedMS(),
		},
	}
}

// classify is Stage 2: classification and name extraction fan out with no
// data dependency and join before Stage 3. Both collaborators are advisory,
// so each branch absorbs its own failure, panics included, and the join
// never errors.
func (o *Orchestrator) classify(ctx context.Context, rc *requestContext) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("classifier panic",
					slog.String("session_id", rc.sessionID),
					slog.Any("panic", r))
				rc.classification = &domain.Classification{Primary: domain.DefaultCategory, Urgency: domain.UrgencyMedium}
			}
		}()
		cls, err := o.cfg.Classifier.Classify(gctx, rc.message)
		if err != nil || cls == nil {
			o.logger.Warn("classification failed, using default category",
				slog.String("session_id", rc.sessionID),
				slog.Any("error", err))
			cls = &domain.Classification{Primary: domain.DefaultCategory, Urgency: domain.UrgencyMedium}
		}
		if !domain.IsValidCategory(cls.Primary) {
			o.logger.Warn("classifier returned out-of-set category",
				slog.String("category", string(cls.Primary)))
			cls.Primary = domain.DefaultCategory
		}
		rc.classification = cls
		return nil
	})

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("name extraction panic",
					slog.String("session_id", rc.sessionID),
					slog.Any("panic", r))
				rc.customerName = defaultCustomerName
			}
		}()
		name, err := o.cfg.Names.ExtractName(gctx, rc.message, rc.contactName)
		if err != nil || name == "" {
			name = defaultCustomerName
		}
		rc.customerName = name
		return nil
	})

	_ = g.Wait()
}

// buildInput is Stage 3: pure local prompt construction, with the history
// window loaded from the context provider when one is configured.
func (o *Orchestrator) buildInput(ctx context.Context, rc *requestContext) {
	rc.customerEmail = rc.contactEmail
	if rc.customerEmail == "" && rc.classification != nil {
		rc.customerEmail = rc.classification.Email
	}

	var history []domain.HistoryTurn
	if o.cfg.Contexts != nil {
		turns, err := o.cfg.Contexts.History(ctx, rc.sessionID)
		if err != nil {
			o.logger.Warn("history load failed",
				slog.String("session_id", rc.sessionID),
				slog.String("error", err.Error()))
		} else {
			history = turns
		}

		if rc.customerEmail != "" {
			profile, err := o.cfg.Contexts.Profile(ctx, rc.customerEmail)
			if err != nil {
				o.logger.Warn("profile load failed",
					slog.String("session_id", rc.sessionID),
					slog.String("error", err.Error()))
			} else {
				rc.profile = profile
			}
		}
	}

	rc.genInput = o.prompts.Build(rc.customerName, rc.customerEmail, history, rc.message)
}

// runGeneration is Stage 4: reply generation and outstanding detection fan
// out on the same category/message and join before Stage 5. A generation
// failure aborts the stage even if detection succeeded; the detection result
// is discarded because there is no reply to evaluate. A detection failure
// alone degrades to not-outstanding.
func (o *Orchestrator) runGeneration(ctx context.Context, rc *requestContext) *domain.PipelineResult {
	category := rc.category()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &domain.GenerationError{Category: category, Err: fmt.Errorf("generator panic: %v", r)}
			}
		}()
		reply, err := o.cfg.Generator.Generate(gctx, category, rc.customerEmail, rc.genInput)
		if err != nil {
			return &domain.GenerationError{Category: category, Err: err}
		}
		rc.rawReply = reply
		return nil
	})

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("outstanding detection panic",
					slog.String("session_id", rc.sessionID),
					slog.Any("panic", r))
				rc.isOutstanding = false
				rc.outstandingTrigger = "detection_error"
			}
		}()
		res, err := o.cfg.Outstanding.Detect(gctx, rc.message, category)
		if err != nil || res == nil {
			o.logger.Warn("outstanding detection failed",
				slog.String("session_id", rc.sessionID),
				slog.Any("error", err))
			res = &domain.OutstandingResult{IsOutstanding: false, Trigger: "detection_error"}
		}
		rc.isOutstanding = res.IsOutstanding
		rc.outstandingTrigger = res.Trigger
		return nil
	})

	if err := g.Wait(); err != nil {
		o.logger.Error("reply generation failed",
			slog.String("session_id", rc.sessionID),
			slog.String("category", string(category)),
			slog.String("error", err.Error()))
		return o.failureResult(rc, err)
	}
	return nil
}

// postProcess is Stage 5: cancellation-link splice for retention categories
// with a known email, then deterministic assembly.
func (o *Orchestrator) postProcess(rc *requestContext) {
	category := rc.category()
	if category.IsRetention() && rc.customerEmail != "" && o.cfg.Links != nil {
		subscriptionRef := "pending"
		if rc.profile != nil && rc.profile.SubscriptionRef != "" {
			subscriptionRef = rc.profile.SubscriptionRef
		}
		url, err := o.cfg.Links.CancelLink(subscriptionRef, rc.customerEmail)
		switch {
		case err != nil:
			o.logger.Warn("cancel link generation failed",
				slog.String("session_id", rc.sessionID),
				slog.String("error", err.Error()))
		case url != "":
			rc.rawReply = retention.InjectCancelLink(rc.rawReply, url)
		}
	}

	rc.rawReply = assembler.Assemble(rc.rawReply, rc.customerName, category, rc.sessionID)
}

// evaluate is Stage 6: the standard gate, or the QA gate in team mode.
func (o *Orchestrator) evaluate(ctx context.Context, rc *requestContext) {
	category := rc.category()
	jr := domain.JudgeRequest{
		Message:        rc.message,
		Reply:          rc.rawReply,
		Category:       category,
		IsOutstanding:  rc.isOutstanding,
		ToolsAvailable: domain.ConfigFor(category).Tools,
	}

	var res *domain.EvalResult
	if rc.teamMode {
		jr.Attempt = rc.attempt
		jr.PreviousFeedback = rc.qaFeedback
		res = o.cfg.QAGate.Evaluate(ctx, jr)
		rc.qaFeedback = res.Feedback
	} else {
		res = o.cfg.Gate.Evaluate(ctx, jr)
	}

	rc.decision = res.Decision
	rc.confidence = res.Confidence
	rc.checks = res.Checks
	rc.overrideReason = res.OverrideReason

	if rc.decision != domain.DecisionSend && rc.decision != domain.DecisionRefine {
		o.logger.Warn("evaluation not send",
			slog.String("session_id", rc.sessionID),
			slog.String("decision", string(rc.decision)),
			slog.String("confidence", string(rc.confidence)),
			slog.String("override_reason", rc.overrideReason),
			slog.Int("attempt", rc.attempt))
	}
}

// persist is Stage 7: independent best-effort writes. The session upsert is
// issued first because the turn and eval rows reference it; each failure is
// logged and never stops the sibling writes or changes the result.
func (o *Orchestrator) persist(ctx context.Context, rc *requestContext) {
	if o.cfg.Store == nil {
		return
	}
	category := rc.category()
	cfg := domain.ConfigFor(category)

	logErr := func(op string, err error) {
		if err != nil {
			o.logger.Error("persistence write failed",
				slog.String("session_id", rc.sessionID),
				slog.String("op", op),
				slog.String("error", err.Error()))
		}
	}

	var secondary domain.Category
	var urgency domain.Urgency = domain.UrgencyMedium
	if rc.classification != nil {
		secondary = rc.classification.Secondary
		urgency = rc.classification.Urgency
	}

	logErr("save_session", o.cfg.Store.SaveSession(ctx, domain.SessionRecord{
		SessionID:           rc.sessionID,
		ConversationID:      rc.conversationID,
		Channel:             rc.channel,
		CustomerEmail:       rc.customerEmail,
		CustomerName:        rc.customerName,
		PrimaryCategory:     category,
		SecondaryCategory:   secondary,
		Urgency:             urgency,
		Status:              "active",
		EvalDecision:        rc.decision,
		FirstResponseTimeMS: rc.processingTimeMS,
	}))

	logErr("update_outstanding", o.cfg.Store.UpdateOutstanding(ctx, rc.sessionID, rc.isOutstanding, rc.outstandingTrigger, rc.decision))

	logErr("save_user_message", o.cfg.Store.SaveMessage(ctx, domain.MessageRecord{
		SessionID: rc.sessionID,
		Role:      "user",
		Content:   rc.message,
	}))

	logErr("save_assistant_message", o.cfg.Store.SaveMessage(ctx, domain.MessageRecord{
		SessionID:        rc.sessionID,
		Role:             "assistant",
		Content:          rc.rawReply,
		ModelUsed:        cfg.Model,
		ProcessingTimeMS: rc.processingTimeMS,
	}))

	logErr("save_eval_result", o.cfg.Store.SaveEvalResult(ctx, domain.EvalRecord{
		SessionID:          rc.sessionID,
		Category:           category,
		SecondaryCategory:  secondary,
		Decision:           rc.decision,
		Confidence:         rc.confidence,
		OverrideReason:     rc.overrideReason,
		Checks:             rc.checks,
		IsOutstanding:      rc.isOutstanding,
		OutstandingTrigger: rc.outstandingTrigger,
		Attempts:           rc.attempt,
	}))
}

// failureResult is the terminal escalation for the pipeline-failure path.
func (o *Orchestrator) failureResult(rc *requestContext, err error) *domain.PipelineResult {
	return &domain.PipelineResult{
		Response:   FailureText,
		SessionID:  rc.sessionID,
		Category:   rc.category(),
		Decision:   domain.DecisionEscalate,
		Confidence: domain.ConfidenceLow,
		Metadata: map[string]any{
			"error":              err.Error(),
			"processing_time_ms": rc.elapsedMS(),
		},
	}
}

func (o *Orchestrator) buildResult(rc *requestContext) *domain.PipelineResult {
	category := rc.category()
	cfg := domain.ConfigFor(category)

	meta := map[string]any{
		"model_used":          cfg.Model,
		"processing_time_ms":  rc.processingTimeMS,
		"is_outstanding":      rc.isOutstanding,
		"outstanding_trigger": rc.outstandingTrigger,
		"customer_name":       rc.customerName,
		"eval_checks":         rc.checks,
	}
	if rc.classification != nil && rc.classification.Secondary != "" {
		meta["secondary_category"] = rc.classification.Secondary
	}
	if rc.overrideReason != "" {
		meta["override_reason"] = rc.overrideReason
	}
	if rc.teamMode {
		meta["team_mode"] = true
		meta["attempts"] = rc.attempt
	}

	return &domain.PipelineResult{
		Response:   rc.rawReply,
		SessionID:  rc.sessionID,
		Category:   category,
		Decision:   rc.decision,
		Confidence: rc.confidence,
		Metadata:   meta,
	}
}
