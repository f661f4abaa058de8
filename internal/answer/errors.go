package answer

import (
	"fmt"
	"time"
)

// UpstreamGenerationError reports that the language model did not produce an
// answer: the call failed, the circuit breaker rejected it, or it did not
// finish within the timeout.
type UpstreamGenerationError struct {
	// Timeout is set when the call ran out of time.
	Timeout bool

	// After is the timeout that elapsed, when Timeout is set.
	After time.Duration

	Err error
}

func (e *UpstreamGenerationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("answer: upstream generation timed out after %s: %v", e.After, e.Err)
	}
	return fmt.Sprintf("answer: upstream generation failed: %v", e.Err)
}

func (e *UpstreamGenerationError) Unwrap() error { return e.Err }
