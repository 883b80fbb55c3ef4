// Package safety implements the pre-processing red-line scan: a fast,
// deterministic pattern match over inbound messages that forces immediate
// escalation before any reply generation happens.
package safety

import "regexp"

type redLine struct {
	re      *regexp.Regexp
	trigger string
}

var redLines = []redLine{
	{regexp.MustCompile(`(?i)\b(kill|murder|die|death threat)\b`), "death_threat"},
	{regexp.MustCompile(`(?i)\b(sue|lawsuit|lawyer|legal action|court)\b`), "legal_threat"},
	{regexp.MustCompile(`(?i)\b(bank dispute|chargeback|dispute the charge)\b`), "bank_dispute"},
	{regexp.MustCompile(`(?i)\b(suicide|end my life|harm myself)\b`), "self_harm"},
	{regexp.MustCompile(`(?i)\b(bomb|weapon|attack)\b`), "violence_threat"},
}

// CheckRedLines scans a message for red-line triggers. It returns the name of
// the first trigger hit, or ("", false) when the message is clean. It never
// fails: a red-line hit must be able to short-circuit the pipeline without
// any external dependency.
func CheckRedLines(message string) (trigger string, flagged bool) {
	for _, rl := range redLines {
		if rl.re.MatchString(message) {
			return rl.trigger, true
		}
	}
	return "", false
}
