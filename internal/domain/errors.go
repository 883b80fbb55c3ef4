package domain

import "fmt"

// JudgeParseError reports that the semantic judge returned output that could
// not be decoded into a JudgeVerdict. The evaluation gate degrades to a
// low-confidence draft when it sees this error.
type JudgeParseError struct {
	Raw string
	Err error
}

func (e *JudgeParseError) Error() string {
	return fmt.Sprintf("judge output unparseable: %v", e.Err)
}

func (e *JudgeParseError) Unwrap() error { return e.Err }

// GenerationError reports that the reply generator failed. It is the only
// collaborator failure the orchestrator does not absorb: with no reply to
// show, the request terminates as an escalation.
type GenerationError struct {
	Category Category
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("reply generation failed for %s: %v", e.Category, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
