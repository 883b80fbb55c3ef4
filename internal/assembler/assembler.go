// Package assembler composes the final customer-facing reply from the raw
// generated body: greeting, category opener, sanitized body, closer, and
// sign-off. Assembly is fully deterministic, with no external calls, so the same
// session and category always produce the same framing.
package assembler

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
)

var openers = map[string][]string{
	"shipping": {
		"I'd be happy to help you with your shipment!",
		"Let me look into your delivery for you.",
		"I understand how important it is to receive your package on time.",
	},
	"payment": {
		"I'd be happy to help with your payment question.",
		"Let me look into your billing details.",
		"I understand you have a question about your payment.",
	},
	"subscription": {
		"I'd be happy to help with your subscription.",
		"Let me assist you with that change.",
		"I can help you with your subscription request.",
	},
	"damage": {
		"I'm sorry to hear about the issue with your package.",
		"I apologize for the inconvenience - let me help resolve this.",
		"I'm sorry that happened. Let me help make it right.",
	},
	"retention": {
		"I'm sorry to hear you're considering leaving us.",
		"I understand, and I appreciate you reaching out before making a decision.",
		"Thank you for letting us know. I'd love the opportunity to help.",
	},
	"gratitude": {
		"What a wonderful message - thank you so much!",
		"That truly means a lot to our team!",
		"Thank you for your kind words!",
	},
	"general": {
		"Thank you for reaching out to us.",
		"I'd be happy to help you with that.",
		"Thank you for contacting Lev Haolam support.",
	},
}

var closers = []string{
	"If you have any other questions, please don't hesitate to reach out.",
	"Please let me know if there's anything else I can help with.",
	"Feel free to contact us again if you need further assistance.",
	"Don't hesitate to reach out if you need anything else.",
	"I'm here if you need any further help.",
	"Please let me know if you have any other questions or concerns.",
	"We're always here to help - just reach out anytime.",
	"Is there anything else I can assist you with today?",
}

const signOff = "Warm regards,<br>Lev Haolam Support Team"

// systemPhrases mark fixed deflection/escalation text that must pass through
// assembly byte-identical.
var systemPhrases = []string{
	"connecting you with a support agent",
	"connect you with a human",
	"having trouble processing",
	"let me connect you",
}

// Assemble builds the five-slot reply. System and escalation text is returned
// unmodified. Opener and closer selection is keyed on a stable hash of the
// session id, so a session keeps a consistent voice while different sessions
// vary.
func Assemble(rawReply, customerName string, category domain.Category, sessionID string) string {
	if IsSystemResponse(rawReply) {
		return rawReply
	}

	idx := stableHash(sessionID)

	greeting := fmt.Sprintf("Dear %s,", customerName)

	group := domain.ConfigFor(category).OpenerGroup
	openerList, ok := openers[group]
	if !ok || category == domain.CategoryUnknown || !domain.IsValidCategory(category) {
		openerList = openers["general"]
	}
	opener := openerList[idx%uint64(len(openerList))]

	body := Sanitize(stripExistingGreeting(rawReply, customerName))

	closer := closers[idx%uint64(len(closers))]

	parts := []string{
		"<div>" + greeting + "</div>",
		"<div>" + opener + "</div>",
		"<div>" + body + "</div>",
		"<div>" + closer + "</div>",
		"<div>" + signOff + "</div>",
	}
	return strings.Join(parts, "\n")
}

// IsSystemResponse reports whether text is one of the fixed system/deflection
// phrases that must never be wrapped.
func IsSystemResponse(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range systemPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func stableHash(sessionID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	return h.Sum64()
}

var (
	namedGreetingTmpl = `^(Dear|Hi|Hello|Hey)\s+%s[,!]?\s*\n?`
	genericGreetingRe = regexp.MustCompile(`(?i)^(Dear Customer|Dear Client|Dear Valued Customer|Hello|Hi there)[,!]?\s*\n?`)
)

// stripExistingGreeting removes a model-produced greeting from the start of
// the reply so the assembled greeting slot is not duplicated.
func stripExistingGreeting(text, customerName string) string {
	if customerName != "" {
		named := regexp.MustCompile(`(?i)` + fmt.Sprintf(namedGreetingTmpl, regexp.QuoteMeta(customerName)))
		text = strings.TrimSpace(named.ReplaceAllString(text, ""))
	}
	return strings.TrimSpace(genericGreetingRe.ReplaceAllString(text, ""))
}

// Commitments the generator must never make on its own: specific remedies
// that require human approval. Rewritten to non-committal phrasing. The
// replacements contain none of the trigger words, which keeps Sanitize
// idempotent.
var remedyRewrites = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{
		regexp.MustCompile(`(?i)\b(?:I|we)(?:'ll| will)\s+(?:arrange|send|ship|issue|process)\s+(?:a\s+|your\s+)?(?:reshipment|replacement|refund|credit)\b`),
		"our team will review the best way to make this right",
	},
	{
		regexp.MustCompile(`(?i)\b(?:a\s+)?(?:reshipment|replacement|refund|credit)\s+(?:will|is going to)\s+be\s+(?:arranged|sent|shipped|issued|processed)\b`),
		"our team will review the best way to make this right",
	},
}

// Literal internal field names that must never leak into customer text.
var fieldLeakRe = regexp.MustCompile(`\{\{?[a-z0-9_]+\}\}?|\[[A-Z0-9_]{3,}\]`)

const fieldLeakFallback = "please provide more information"

// Sanitize rewrites dangerous specific-remedy commitments into non-committal
// phrasing and replaces internal-field-name leakage with a generic fallback.
// Sanitize(Sanitize(x)) == Sanitize(x) for all x.
func Sanitize(text string) string {
	for _, rw := range remedyRewrites {
		text = rw.re.ReplaceAllString(text, rw.replacement)
	}
	return fieldLeakRe.ReplaceAllString(text, fieldLeakFallback)
}
