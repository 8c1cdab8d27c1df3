package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// Dispatcher is the hard boundary between the reasoning loop and the
// registered functions: every outcome, including panics, comes back as a
// FunctionResponse.
type Dispatcher struct {
	logger   *slog.Logger
	registry *domain.Registry
	cache    *ResultCache
}

// NewDispatcher builds a dispatcher. cache may be nil.
func NewDispatcher(logger *slog.Logger, registry *domain.Registry, cache *ResultCache) *Dispatcher {
	return &Dispatcher{logger: logger, registry: registry, cache: cache}
}

// Registry returns the table this dispatcher serves.
func (d *Dispatcher) Registry() *domain.Registry {
	return d.registry
}

// Dispatch runs the named function with params.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID domain.SessionID, name string, params map[string]interface{}) domain.FunctionResponse {
	fn, ok := d.registry.Lookup(name)
	if !ok {
		msg := fmt.Sprintf("unknown action %q. Valid actions: %s", name, strings.Join(d.registry.Names(), ", "))
		if hint := d.registry.Suggest(name); hint != "" {
			msg += fmt.Sprintf(". Did you mean %q?", hint)
		}
		d.logger.Warn("dispatch of unknown action", "action", name, "session_id", string(sessionID))
		return domain.NewFunctionResponse(name, domain.Failure(msg))
	}

	if missing := missingParameters(fn.Required, params); len(missing) > 0 {
		return domain.NewFunctionResponse(name, domain.Failuref(
			"missing required parameters: %s. Expected signature: %s",
			strings.Join(missing, ", "), fn.Signature()))
	}

	declared := declaredOnly(fn, params)
	if err := fn.Schema.VisitJSON(declared, openapi3.MultiErrors()); err != nil {
		return domain.NewFunctionResponse(name, domain.Failuref("invalid parameters for %s: %v", fn.Signature(), err))
	}

	inv := domain.Invocation{Params: declared}
	if fn.WantsSession {
		inv.SessionID = sessionID
	}

	resp := domain.NewFunctionResponse(name, d.invoke(ctx, fn, inv))
	d.logger.Info("action dispatched", "action", name, "session_id", string(sessionID), "status", resp.Status())

	if resp.Result.IsSuccess() && !fn.SkipResultCache && d.cache != nil && sessionID != "" {
		d.cache.Put(sessionID, resp)
	}
	return resp
}

func (d *Dispatcher) invoke(ctx context.Context, fn *domain.RegisteredFunction, inv domain.Invocation) (result domain.FunctionResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("action panicked", "action", fn.Name, "panic", r)
			result = domain.Failuref("action %s failed: %v", fn.Name, r)
		}
	}()

	value, err := fn.Implementation(ctx, inv)
	if err != nil {
		return domain.Failure(err.Error())
	}

	switch v := value.(type) {
	case domain.FunctionResult:
		return v
	case *domain.FunctionResult:
		if v == nil {
			return domain.Success(nil)
		}
		return *v
	case domain.FunctionResponse:
		return v.Result
	case *domain.FunctionResponse:
		if v == nil {
			return domain.Success(nil)
		}
		return v.Result
	default:
		return domain.Success(value)
	}
}

// missingParameters keeps the declared order. A key holding null counts as missing.
func missingParameters(required []string, params map[string]interface{}) []string {
	var missing []string
	for _, key := range required {
		if v, ok := params[key]; !ok || v == nil {
			missing = append(missing, key)
		}
	}
	return missing
}

func declaredOnly(fn *domain.RegisteredFunction, params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for _, key := range fn.DeclaredParameters() {
		if v, ok := params[key]; ok && v != nil {
			out[key] = v
		}
	}
	return out
}
