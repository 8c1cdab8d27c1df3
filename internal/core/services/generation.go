package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// generator applies the per-call timeout to every text-generation call and
// tags failures with domain.ErrGeneration so the loop can charge a retry.
type generator struct {
	llm     domain.LLMProvider
	timeout time.Duration
}

func (g generator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g generator) text(ctx context.Context, prompt, system string) (string, error) {
	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	out, err := g.llm.GenerateText(callCtx, prompt, system)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	return out, nil
}

// stream runs a streaming call through the demultiplexer when the provider
// supports it, falling back to a completed call otherwise.
func (g generator) stream(ctx context.Context, prompt, system string, demux Demultiplexer, messageID string, sink ContentSink) (string, error) {
	sp, ok := g.llm.(domain.StreamingLLMProvider)
	if !ok || sink == nil {
		return g.text(ctx, prompt, system)
	}

	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	out, err := demux.Run(callCtx, messageID, sp.StreamText(callCtx, prompt, system), sink)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	return out, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
