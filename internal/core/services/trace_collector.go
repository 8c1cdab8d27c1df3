package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/aule-agent/internal/core/domain"
)

const (
	defaultMaxTraces = 500
	maxSpanOutput    = 2000
)

// TraceCollector keeps the traces of recent reasoning runs in a ring.
// A nil *TraceCollector is valid and records nothing.
type TraceCollector struct {
	mu        sync.RWMutex
	eventBus  *EventBus
	maxTraces int

	traces     map[domain.TraceID]*domain.Trace
	spans      map[domain.SpanID]*domain.Span
	traceSpans map[domain.TraceID][]domain.SpanID // start order
	order      []domain.TraceID
}

// NewTraceCollector creates a collector; eventBus may be nil.
func NewTraceCollector(eventBus *EventBus, maxTraces int) *TraceCollector {
	if maxTraces <= 0 {
		maxTraces = defaultMaxTraces
	}
	return &TraceCollector{
		eventBus:   eventBus,
		maxTraces:  maxTraces,
		traces:     make(map[domain.TraceID]*domain.Trace, maxTraces),
		spans:      make(map[domain.SpanID]*domain.Span, maxTraces*8),
		traceSpans: make(map[domain.TraceID][]domain.SpanID, maxTraces),
	}
}

type traceCtxKey struct{}
type spanCtxKey struct{}

func contextWithSpan(ctx context.Context, traceID domain.TraceID, spanID domain.SpanID) context.Context {
	ctx = context.WithValue(ctx, traceCtxKey{}, traceID)
	return context.WithValue(ctx, spanCtxKey{}, spanID)
}

// TraceFromContext returns the trace and current span carried by ctx.
func TraceFromContext(ctx context.Context) (domain.TraceID, domain.SpanID, bool) {
	traceID, ok1 := ctx.Value(traceCtxKey{}).(domain.TraceID)
	spanID, ok2 := ctx.Value(spanCtxKey{}).(domain.SpanID)
	return traceID, spanID, ok1 && ok2
}

// StartTrace opens a trace with its root run span.
func (tc *TraceCollector) StartTrace(ctx context.Context, name string, sessionID domain.SessionID) (context.Context, domain.TraceID) {
	if tc == nil {
		return ctx, ""
	}

	traceID := domain.TraceID(uuid.NewString())
	rootID := domain.SpanID(uuid.NewString())
	now := time.Now()

	tc.mu.Lock()
	tc.evictLocked()
	tc.traces[traceID] = &domain.Trace{
		ID:         traceID,
		RootSpanID: rootID,
		Name:       name,
		Status:     domain.SpanStatusRunning,
		SessionID:  sessionID,
		StartTime:  now,
		SpanCount:  1,
	}
	tc.spans[rootID] = &domain.Span{
		ID:        rootID,
		TraceID:   traceID,
		Name:      name,
		Kind:      domain.SpanKindRun,
		Status:    domain.SpanStatusRunning,
		StartTime: now,
	}
	tc.traceSpans[traceID] = []domain.SpanID{rootID}
	tc.order = append(tc.order, traceID)
	tc.mu.Unlock()

	tc.publish(sessionID, map[string]interface{}{"trace_id": traceID, "name": name, "status": domain.SpanStatusRunning})
	return contextWithSpan(ctx, traceID, rootID), traceID
}

// EndTrace closes the trace and its root span.
func (tc *TraceCollector) EndTrace(traceID domain.TraceID, status domain.SpanStatus, errMsg string) {
	if tc == nil || traceID == "" {
		return
	}

	tc.mu.Lock()
	trace, ok := tc.traces[traceID]
	if !ok {
		tc.mu.Unlock()
		return
	}
	now := time.Now()
	trace.Status = status
	trace.EndTime = &now
	trace.DurationMs = now.Sub(trace.StartTime).Milliseconds()
	if root, ok := tc.spans[trace.RootSpanID]; ok {
		finishSpan(root, status, "", errMsg, now)
	}
	sessionID, duration := trace.SessionID, trace.DurationMs
	tc.mu.Unlock()

	tc.publish(sessionID, map[string]interface{}{"trace_id": traceID, "status": status, "duration_ms": duration})
}

// StartSpan opens a child of the span carried by ctx. Without a trace in
// ctx it returns an empty id and EndSpan becomes a no-op.
func (tc *TraceCollector) StartSpan(ctx context.Context, name string, kind domain.SpanKind, attrs map[string]string) (context.Context, domain.SpanID) {
	if tc == nil {
		return ctx, ""
	}
	traceID, parentID, ok := TraceFromContext(ctx)
	if !ok {
		return ctx, ""
	}

	spanID := domain.SpanID(uuid.NewString())

	tc.mu.Lock()
	defer tc.mu.Unlock()
	trace, ok := tc.traces[traceID]
	if !ok {
		return ctx, ""
	}
	tc.spans[spanID] = &domain.Span{
		ID:         spanID,
		ParentID:   parentID,
		TraceID:    traceID,
		Name:       name,
		Kind:       kind,
		Status:     domain.SpanStatusRunning,
		Attributes: attrs,
		StartTime:  time.Now(),
	}
	if parent, ok := tc.spans[parentID]; ok {
		parent.Children = append(parent.Children, spanID)
	}
	tc.traceSpans[traceID] = append(tc.traceSpans[traceID], spanID)
	trace.SpanCount++

	return contextWithSpan(ctx, traceID, spanID), spanID
}

// EndSpan closes a span. The status follows err: nil is ok, a context
// error is cancelled, anything else is error.
func (tc *TraceCollector) EndSpan(spanID domain.SpanID, output string, err error) {
	if tc == nil || spanID == "" {
		return
	}

	status, errMsg := domain.SpanStatusOK, ""
	if err != nil {
		status, errMsg = domain.SpanStatusError, err.Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = domain.SpanStatusCancelled
		}
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if span, ok := tc.spans[spanID]; ok {
		finishSpan(span, status, output, errMsg, time.Now())
	}
}

func finishSpan(span *domain.Span, status domain.SpanStatus, output, errMsg string, now time.Time) {
	span.Status = status
	span.EndTime = &now
	span.DurationMs = now.Sub(span.StartTime).Milliseconds()
	if output != "" {
		span.Output = truncate(output, maxSpanOutput)
	}
	if errMsg != "" {
		span.Error = errMsg
	}
}

// ListTraces returns summaries, newest first.
func (tc *TraceCollector) ListTraces(limit int) []domain.TraceSummary {
	if tc == nil {
		return []domain.TraceSummary{}
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	if limit <= 0 || limit > len(tc.order) {
		limit = len(tc.order)
	}
	out := make([]domain.TraceSummary, 0, limit)
	for i := len(tc.order) - 1; i >= 0 && len(out) < limit; i-- {
		t, ok := tc.traces[tc.order[i]]
		if !ok {
			continue
		}
		out = append(out, domain.TraceSummary{
			ID:         t.ID,
			Name:       t.Name,
			Status:     t.Status,
			SessionID:  t.SessionID,
			StartTime:  t.StartTime,
			DurationMs: t.DurationMs,
			SpanCount:  t.SpanCount,
		})
	}
	return out
}

// ErrTraceNotFound is returned by GetTrace for unknown or evicted traces.
var ErrTraceNotFound = errors.New("trace not found")

// GetTrace returns a copy of the trace with its spans in start order.
func (tc *TraceCollector) GetTrace(traceID domain.TraceID) (*domain.Trace, error) {
	if tc == nil {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, traceID)
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	t, ok := tc.traces[traceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, traceID)
	}
	result := *t
	result.Spans = make([]domain.Span, 0, len(tc.traceSpans[traceID]))
	for _, id := range tc.traceSpans[traceID] {
		if span, ok := tc.spans[id]; ok {
			cp := *span
			cp.Children = append([]domain.SpanID(nil), span.Children...)
			result.Spans = append(result.Spans, cp)
		}
	}
	return &result, nil
}

func (tc *TraceCollector) evictLocked() {
	for len(tc.order) >= tc.maxTraces {
		oldest := tc.order[0]
		tc.order = tc.order[1:]
		for _, id := range tc.traceSpans[oldest] {
			delete(tc.spans, id)
		}
		delete(tc.traceSpans, oldest)
		delete(tc.traces, oldest)
	}
}

func (tc *TraceCollector) publish(sessionID domain.SessionID, data map[string]interface{}) {
	if tc.eventBus == nil || sessionID == "" {
		return
	}
	tc.eventBus.PublishJSON(string(sessionID), EventTypeTrace, data)
}
