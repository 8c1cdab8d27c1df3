package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// StepSink is implemented by content sinks that also want every reasoning
// step as it is appended.
type StepSink interface {
	Step(step domain.ReasoningStep)
}

// ReasoningAgent drives the plan, act, observe cycle for one request at a
// time per call. It holds no per-request state, so a single instance serves
// any number of concurrent sessions.
type ReasoningAgent struct {
	logger     *slog.Logger
	gen        generator
	registry   *domain.Registry
	extractor  *ActionExtractor
	dispatcher *Dispatcher
	sessions   *SessionStore
	tracer     *TraceCollector
	cfg        domain.AgentConfig

	planDemux        Demultiplexer
	observationDemux Demultiplexer
}

// NewReasoningAgent wires the loop. sessions may be nil, in which case no
// history is folded into the framing step and Chat persists nothing.
func NewReasoningAgent(
	logger *slog.Logger,
	llm domain.LLMProvider,
	extractor *ActionExtractor,
	dispatcher *Dispatcher,
	sessions *SessionStore,
	cfg domain.AgentConfig,
) *ReasoningAgent {
	return &ReasoningAgent{
		logger:     logger,
		gen:        generator{llm: llm, timeout: cfg.CallTimeout},
		registry:   dispatcher.Registry(),
		extractor:  extractor,
		dispatcher: dispatcher,
		sessions:   sessions,
		cfg:        cfg,
		planDemux: Demultiplexer{
			StartMarker: cfg.Stream.PlanStartMarker,
			FieldMarker: cfg.Stream.PlanFieldMarker,
		},
		observationDemux: Demultiplexer{
			StartMarker: cfg.Stream.ObservationStartMarker,
			FieldMarker: cfg.Stream.ObservationFieldMarker,
		},
	}
}

// WithTracer records every run as a trace.
func (a *ReasoningAgent) WithTracer(tc *TraceCollector) *ReasoningAgent {
	a.tracer = tc
	return a
}

// Chat runs a request inside a session: it creates the session when needed,
// records the user message, runs the loop and records the answer.
func (a *ReasoningAgent) Chat(ctx context.Context, sessionID domain.SessionID, message string, sink ContentSink) (*domain.AgentResponse, domain.SessionID, error) {
	if a.sessions == nil {
		resp, err := a.Run(ctx, sessionID, message, sink)
		return resp, sessionID, err
	}

	sess, err := a.sessions.EnsureSession(ctx, sessionID, message)
	if err != nil {
		return nil, sessionID, fmt.Errorf("ensure session: %w", err)
	}
	sessionID = sess.ID

	history := a.history(ctx, sessionID)

	if err := a.sessions.AddMessage(ctx, domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   message,
	}); err != nil {
		return nil, sessionID, fmt.Errorf("persist user message: %w", err)
	}

	resp, err := a.run(ctx, sessionID, history, message, sink)
	if err != nil {
		return resp, sessionID, err
	}

	if err := a.sessions.AddMessage(ctx, domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   resp.Answer,
		CreatedAt: time.Now(),
	}); err != nil {
		a.logger.Error("failed to persist assistant message", "session_id", string(sessionID), "error", err)
	}
	return resp, sessionID, nil
}

// Run processes one request. The response is DONE with the answer or
// FAILED with a terminal message; the only error returned is the context's
// when the caller cancels.
func (a *ReasoningAgent) Run(ctx context.Context, sessionID domain.SessionID, request string, sink ContentSink) (*domain.AgentResponse, error) {
	return a.run(ctx, sessionID, a.history(ctx, sessionID), request, sink)
}

func (a *ReasoningAgent) history(ctx context.Context, sessionID domain.SessionID) string {
	if a.sessions == nil || sessionID == "" {
		return ""
	}
	history, err := a.sessions.BuildContextWindow(ctx, sessionID, a.cfg.HistoryWindow)
	if err != nil {
		a.logger.Warn("could not load session history", "session_id", string(sessionID), "error", err)
		return ""
	}
	return history
}

func (a *ReasoningAgent) run(ctx context.Context, sessionID domain.SessionID, history, request string, sink ContentSink) (resp *domain.AgentResponse, err error) {
	ctx, traceID := a.tracer.StartTrace(ctx, "chat: "+truncate(request, 60), sessionID)
	defer func() { a.endTrace(traceID, resp, err) }()

	system := buildPlanningSystem(a.registry, history)
	chain := domain.NewChain(system, request)
	steps, _ := sink.(StepSink)

	appendStep := func(kind domain.StepKind, content string) {
		chain.Append(kind, content)
		if steps != nil {
			steps.Step(domain.ReasoningStep{Kind: kind, Content: content})
		}
	}

	log := a.logger.With("session_id", string(sessionID))
	log.Info("starting reasoning loop", "request", truncate(request, 200))

	iterations, retries := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return domain.FailedResponse("the request was cancelled", iterations, retries), err
		}
		if iterations > a.cfg.MaxNestingLevel {
			log.Warn("round-trip limit reached", "limit", a.cfg.MaxNestingLevel+1)
			return domain.FailedResponse(
				fmt.Sprintf("the limit of %d reasoning rounds was reached without an answer", a.cfg.MaxNestingLevel+1),
				iterations, retries), nil
		}
		iterations++
		log.Info("reasoning iteration", "iteration", iterations, "retries", retries)

		answer, answered, err := a.round(ctx, sessionID, system, chain, appendStep, sink)
		if err == nil {
			if answered {
				log.Info("request answered", "iterations", iterations, "retries", retries)
				return &domain.AgentResponse{
					Answer:     answer,
					Status:     domain.AgentStatusDone,
					Iterations: iterations,
					Retries:    retries,
				}, nil
			}
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.FailedResponse("the request was cancelled", iterations, retries), ctxErr
		}
		if !domain.IsStructural(err) {
			log.Warn("unclassified error treated as structural", "error", err)
		}
		appendStep(domain.StepError, err.Error())

		if retries >= a.cfg.MaxRetries {
			log.Warn("retry budget exhausted", "retries", retries, "error", err)
			return domain.FailedResponse(
				fmt.Sprintf("the retry budget of %d was exhausted (last error: %v)", a.cfg.MaxRetries, err),
				iterations, retries), nil
		}
		retries++
		log.Info("structural error, retrying", "retry", retries, "error", err)
	}
}

func (a *ReasoningAgent) endTrace(traceID domain.TraceID, resp *domain.AgentResponse, err error) {
	switch {
	case err != nil:
		a.tracer.EndTrace(traceID, domain.SpanStatusCancelled, err.Error())
	case resp != nil && resp.Status == domain.AgentStatusFailed:
		a.tracer.EndTrace(traceID, domain.SpanStatusError, resp.Answer)
	default:
		a.tracer.EndTrace(traceID, domain.SpanStatusOK, "")
	}
}

// round performs PLANNING, the optional ACTING and OBSERVING once.
func (a *ReasoningAgent) round(
	ctx context.Context,
	sessionID domain.SessionID,
	system string,
	chain *domain.Chain,
	appendStep func(domain.StepKind, string),
	sink ContentSink,
) (string, bool, error) {
	planCtx, span := a.tracer.StartSpan(ctx, "plan", domain.SpanKindLLM, nil)
	thought, err := a.gen.stream(planCtx, buildPlanningPrompt(chain), system, a.planDemux, uuid.NewString(), sink)
	a.tracer.EndSpan(span, thought, err)
	if err != nil {
		return "", false, err
	}
	appendStep(domain.StepAssistantPlan, thought)

	action, err := a.extractor.ExtractAction(ctx, thought)
	if err != nil {
		return "", false, err
	}

	if !action.IsNoAction() {
		params, err := a.extractor.ResolveParameters(ctx, action)
		if err != nil {
			return "", false, err
		}
		actCtx, span := a.tracer.StartSpan(ctx, "action "+action.Name, domain.SpanKindAction, map[string]string{"action": action.Name})
		resp := a.dispatcher.Dispatch(actCtx, sessionID, action.Name, params)
		var failure error
		if !resp.Result.IsSuccess() {
			failure = errors.New(resp.Result.Message())
		}
		a.tracer.EndSpan(span, resp.String(), failure)
		appendStep(domain.StepActionResult, resp.String())
	}

	obsCtx, span := a.tracer.StartSpan(ctx, "observe", domain.SpanKindLLM, nil)
	raw, err := a.gen.stream(obsCtx, buildObservationPrompt(chain), observationSystem, a.observationDemux, uuid.NewString(), sink)
	a.tracer.EndSpan(span, raw, err)
	if err != nil {
		return "", false, err
	}
	appendStep(domain.StepAssistantObservation, raw)

	obs, err := a.extractor.ParseObservation(ctx, raw)
	if err != nil {
		return "", false, err
	}
	return obs.Answer, obs.IsAnswered, nil
}
