// Package llm defines the language-model backend used to answer questions and
// write transcript summaries.
//
// A Provider makes one non-streaming completion per call: answers are only
// returned once complete, and a timed-out answer is discarded whole.
// Implementations must be safe for concurrent use and return promptly when
// ctx is cancelled.
package llm

import "context"

// FinishLength is the finish reason of a reply cut off by the token limit.
const FinishLength = "length"

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one prompt.
type CompletionRequest struct {
	// SystemPrompt is sent first, as a system message, when non-empty.
	SystemPrompt string

	// Messages follow the system prompt. Roles are "system", "user" and
	// "assistant".
	Messages []Message

	// Temperature in [0, 2]. Zero keeps the backend default.
	Temperature float64

	// MaxTokens caps the reply. Zero keeps the backend default.
	MaxTokens int

	// JSONMode asks for a single JSON object. Backends without such a mode
	// ignore it, so the prompt must ask for JSON too.
	JSONMode bool
}

// CompletionResponse is a finished reply.
type CompletionResponse struct {
	Content string

	// FinishReason as reported by the backend, e.g. "stop" or [FinishLength].
	FinishReason string

	Usage Usage
}

// Truncated reports whether the reply hit the token limit.
func (r *CompletionResponse) Truncated() bool {
	return r != nil && r.FinishReason == FinishLength
}

// Provider is a language-model backend.
type Provider interface {
	// Complete sends req and waits for the whole reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities describes the configured model.
	Capabilities() ModelCapabilities
}
