package domain

import (
	"context"
	"iter"
)

// StreamSentinel terminates every fragment stream and must be stripped
// before structural parsing.
const StreamSentinel = "[DONE]"

// LLMProvider generates a completed text for a prompt and system instruction.
type LLMProvider interface {
	GenerateText(ctx context.Context, prompt, system string) (string, error)
}

// StreamingLLMProvider additionally yields the response as a lazy, finite,
// non-restartable sequence of fragments ending with StreamSentinel.
// A non-nil error ends the sequence.
type StreamingLLMProvider interface {
	LLMProvider
	StreamText(ctx context.Context, prompt, system string) iter.Seq2[string, error]
}
