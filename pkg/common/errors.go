package common

import "fmt"

// MalformedTranscriptError reports that segmentation could not establish
// speaker turns. The call still proceeds on a degraded single-speaker
// basis; the error travels alongside the result, not instead of it.
type MalformedTranscriptError struct {
	CallID string
	Reason string
}

func (e *MalformedTranscriptError) Error() string {
	return fmt.Sprintf("malformed transcript %s: %s", e.CallID, e.Reason)
}

// CapabilityUnavailableError reports that an external extraction or
// embedding call failed after retries. The affected window or query is
// degraded, never silently substituted with fabricated content.
type CapabilityUnavailableError struct {
	Capability string
	Err        error
}

func (e *CapabilityUnavailableError) Error() string {
	return fmt.Sprintf("capability %s unavailable: %v", e.Capability, e.Err)
}

func (e *CapabilityUnavailableError) Unwrap() error {
	return e.Err
}

// UnresolvableQueryError reports that no event-like intent could be
// detected in a question. It is surfaced to the caller with guidance
// rather than guessed around.
type UnresolvableQueryError struct {
	Question string
	Guidance string
}

func (e *UnresolvableQueryError) Error() string {
	return fmt.Sprintf("unresolvable query %q: %s", e.Question, e.Guidance)
}

// InsufficientEvidenceError reports that no subgraph met the minimum
// combined confidence. Callers receive it together with a low-confidence
// answer; it never suppresses the answer outright.
type InsufficientEvidenceError struct {
	Question string
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("insufficient evidence for %q", e.Question)
}
