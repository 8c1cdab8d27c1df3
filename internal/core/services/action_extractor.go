package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

var fencedJSONRe = regexp.MustCompile("(?is)```(?:json)[ \t]*\r?\n?(.*?)```")

// ActionExtractor turns raw model output into actions, parameters and
// observations. Every parse gets one pass through the repairer before the
// output is declared malformed.
type ActionExtractor struct {
	logger   *slog.Logger
	registry *domain.Registry
	gen      generator
	repairer Repairer
}

// NewActionExtractor wires the extractor. The same provider is used for the
// parameter generation call.
func NewActionExtractor(logger *slog.Logger, registry *domain.Registry, llm domain.LLMProvider, repairer Repairer, callTimeout time.Duration) *ActionExtractor {
	return &ActionExtractor{
		logger:   logger,
		registry: registry,
		gen:      generator{llm: llm, timeout: callTimeout},
		repairer: repairer,
	}
}

// ExtractAction parses {"action","action_prompt"} or {"action","parameters"}.
// A no_action result is returned as an ordinary Action; callers check IsNoAction.
func (e *ActionExtractor) ExtractAction(ctx context.Context, raw string) (domain.Action, error) {
	var action domain.Action
	err := e.parseWithRepair(ctx, "action", raw, actionShape, func(text string) error {
		a, err := parseAction(text)
		if err != nil {
			return err
		}
		action = a
		return nil
	})
	return action, err
}

// ResolveParameters returns typed parameters for a dispatchable action. When
// the model did not send them, a function-specific call seeded with the
// parameter schema converts the intent into a parameters object.
func (e *ActionExtractor) ResolveParameters(ctx context.Context, action domain.Action) (map[string]interface{}, error) {
	if action.Parameters != nil {
		return action.Parameters, nil
	}

	fn, ok := e.registry.Lookup(action.Name)
	if !ok {
		return nil, &domain.UnknownFunctionError{Name: action.Name, Valid: e.registry.Names()}
	}

	schema, err := json.Marshal(fn.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", fn.Name, err)
	}

	out, err := e.gen.text(ctx, buildParameterPrompt(fn, schema, action.Intent), parameterSystem)
	if err != nil {
		return nil, err
	}

	var params map[string]interface{}
	err = e.parseWithRepair(ctx, "parameters", out, string(schema), func(text string) error {
		p, err := parseObject(text)
		if err != nil {
			return err
		}
		params = p
		return nil
	})
	return params, err
}

// ParseObservation parses {"is_answered","answer"}. An answered observation
// without an answer is malformed.
func (e *ActionExtractor) ParseObservation(ctx context.Context, raw string) (domain.Observation, error) {
	var obs domain.Observation
	err := e.parseWithRepair(ctx, "observation", raw, observationShape, func(text string) error {
		o, err := parseObservation(text)
		if err != nil {
			return err
		}
		obs = o
		return nil
	})
	return obs, err
}

func (e *ActionExtractor) parseWithRepair(ctx context.Context, stage, raw, shape string, parse func(string) error) error {
	firstErr := parseCandidates(raw, parse)
	if firstErr == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.logger.Debug("model output did not parse, repairing", "stage", stage, "error", firstErr)

	fixed, err := e.repairer.Repair(ctx, raw, shape)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.MalformedActionError{Stage: stage, Raw: raw, Err: errors.Join(firstErr, err)}
	}
	if err := parseCandidates(fixed, parse); err != nil {
		return &domain.MalformedActionError{Stage: stage, Raw: raw, Err: err}
	}
	return nil
}

// parseCandidates runs parse over each JSON candidate in raw and stops at
// the first that parses. The error of the first candidate is returned when
// none does.
func parseCandidates(raw string, parse func(string) error) error {
	var firstErr error
	for _, candidate := range jsonCandidates(raw) {
		err := parse(candidate)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// jsonCandidates prefers the interior of a ```json fence, else the trimmed
// text, and returns every balanced top-level object in it in order. The
// text itself is the only candidate when it holds no object.
func jsonCandidates(raw string) []string {
	text := strings.TrimSpace(raw)
	if m := fencedJSONRe.FindStringSubmatch(text); len(m) > 1 {
		text = strings.TrimSpace(m[1])
	}

	var out []string
	for i := 0; i < len(text); {
		next := strings.IndexByte(text[i:], '{')
		if next < 0 {
			break
		}
		start := i + next
		if end, ok := balancedObjectEnd(text, start); ok {
			out = append(out, text[start:end])
			i = end
			continue
		}
		i = start + 1
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// balancedObjectEnd returns the offset just past the } that closes the {
// at start, respecting strings and escapes.
func balancedObjectEnd(s string, start int) (int, bool) {
	inString := false
	escaped := false
	depth := 0
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func parseObject(text string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("parse JSON object: %w", err)
	}
	if obj == nil {
		return nil, errors.New("expected a JSON object, got null")
	}
	return obj, nil
}

func parseAction(text string) (domain.Action, error) {
	var payload struct {
		Action       *string                `json:"action"`
		ActionPrompt string                 `json:"action_prompt"`
		Parameters   map[string]interface{} `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return domain.Action{}, fmt.Errorf("parse action JSON: %w", err)
	}
	if payload.Action == nil || strings.TrimSpace(*payload.Action) == "" {
		return domain.Action{}, errors.New("missing action")
	}
	return domain.Action{
		Name:       strings.TrimSpace(*payload.Action),
		Intent:     strings.TrimSpace(payload.ActionPrompt),
		Parameters: payload.Parameters,
	}, nil
}

func parseObservation(text string) (domain.Observation, error) {
	var payload struct {
		IsAnswered *bool  `json:"is_answered"`
		Answer     string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return domain.Observation{}, fmt.Errorf("parse observation JSON: %w", err)
	}
	if payload.IsAnswered == nil {
		return domain.Observation{}, errors.New("missing is_answered")
	}
	if *payload.IsAnswered && strings.TrimSpace(payload.Answer) == "" {
		return domain.Observation{}, errors.New("is_answered is true but answer is empty")
	}
	return domain.Observation{IsAnswered: *payload.IsAnswered, Answer: payload.Answer}, nil
}
