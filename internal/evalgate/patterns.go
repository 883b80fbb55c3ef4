// Package evalgate is the last checkpoint before an unsupervised send. It
// layers a deterministic pattern scan (Tier 1) under a semantic judge
// (Tier 2): a Tier-1 hit short-circuits to draft and the judge is never
// consulted, so the hard safety rules hold even when the judge is down.
package evalgate

import "regexp"

type unsafePattern struct {
	re        *regexp.Regexp
	violation string
}

// Replies must never claim an irreversible account action was performed.
var unsafeReplyPatterns = []unsafePattern{
	{regexp.MustCompile(`(?i)(cancelled|canceled) your subscription`), "confirmed_cancellation"},
	{regexp.MustCompile(`(?i)subscription (has been|is now) (cancelled|canceled)`), "confirmed_cancellation"},
	{regexp.MustCompile(`(?i)(paused|suspended) your subscription`), "confirmed_pause"},
	{regexp.MustCompile(`(?i)subscription (has been|is now) (paused|suspended)`), "confirmed_pause"},
	{regexp.MustCompile(`(?i)(processed|issued|approved) (a |your )?(refund|reimbursement)`), "confirmed_refund"},
	{regexp.MustCompile(`(?i)refund (has been|is now|was) (processed|issued|approved)`), "confirmed_refund"},
}

// The QA gate additionally forbids promising a specific damage resolution.
var qaExtraPatterns = []unsafePattern{
	{regexp.MustCompile(`(?i)(arranged|sent|shipped) (a |your )?(replacement|reshipment)`), "confirmed_damage_resolution"},
	{regexp.MustCompile(`(?i)(replacement|reshipment) (has been|is now|was) (arranged|sent|shipped)`), "confirmed_damage_resolution"},
}

// fastSafetyCheck runs the Tier-1 scan over a reply. It returns the violation
// name of the first pattern hit, or ("", true) when the reply is safe.
func fastSafetyCheck(reply string, patterns []unsafePattern) (violation string, safe bool) {
	for _, p := range patterns {
		if p.re.MatchString(reply) {
			return p.violation, false
		}
	}
	return "", true
}
