package kernel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/manthysbr/aule-agent/internal/core/services"
)

// handleSessionSSE streams the live events of one session: content deltas
// of the user-visible fields, reasoning steps, agent messages and the
// final answer.
// GET /v1/sessions/{id}/events
func (s *Server) handleSessionSSE(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromPath(strings.TrimSuffix(r.URL.Path, "/"), "events")
	if id == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	s.streamSSE(w, r, func() (<-chan services.Event, func()) {
		return s.eventBus.Subscribe(id)
	})
}

// handleBroadcastSSE streams every event on the bus.
// GET /v1/events
func (s *Server) handleBroadcastSSE(w http.ResponseWriter, r *http.Request) {
	s.streamSSE(w, r, s.eventBus.SubscribeGlobal)
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, subscribe func() (<-chan services.Event, func())) {
	if s.eventBus == nil {
		http.Error(w, "event stream not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, unsub := subscribe()
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			raw, err := json.Marshal(evt)
			if err != nil {
				s.logger.Warn("dropping unencodable event", "type", evt.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, raw)
			flusher.Flush()
		}
	}
}
