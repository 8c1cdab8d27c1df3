package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// Repairer coerces malformed text into a target JSON shape.
type Repairer interface {
	Repair(ctx context.Context, malformed, shape string) (string, error)
}

// JSONRepairer is the format-enforcement capability: a secondary model call
// whose only job is to turn text into the requested JSON shape.
type JSONRepairer struct {
	logger *slog.Logger
	gen    generator
}

// NewJSONRepairer builds a repairer on top of a text-generation provider.
func NewJSONRepairer(logger *slog.Logger, llm domain.LLMProvider, callTimeout time.Duration) *JSONRepairer {
	return &JSONRepairer{
		logger: logger,
		gen:    generator{llm: llm, timeout: callTimeout},
	}
}

// Repair sends the malformed text and the shape description to the model.
func (r *JSONRepairer) Repair(ctx context.Context, malformed, shape string) (string, error) {
	r.logger.Debug("repairing model output", "input", truncate(malformed, 200))
	return r.gen.text(ctx, buildRepairPrompt(malformed, shape), repairSystem)
}
