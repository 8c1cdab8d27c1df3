package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/ports"
	"github.com/manthysbr/aule-agent/internal/core/services"
)

const (
	maxBodyBytes  = 1 << 20
	actionTimeout = 30 * time.Second
)

// Server exposes the agent over HTTP: chat, action introspection and
// dispatch, session history and live SSE events.
type Server struct {
	logger     *slog.Logger
	agent      *services.ReasoningAgent
	dispatcher *services.Dispatcher
	sessions   *services.SessionStore
	eventBus   *services.EventBus
	knowledge  ports.KnowledgeBase
	tracer     *services.TraceCollector
}

func NewServer(
	logger *slog.Logger,
	agent *services.ReasoningAgent,
	dispatcher *services.Dispatcher,
	sessions *services.SessionStore,
	eventBus *services.EventBus,
	knowledge ports.KnowledgeBase,
	tracer *services.TraceCollector,
) *Server {
	return &Server{
		logger:     logger,
		agent:      agent,
		dispatcher: dispatcher,
		sessions:   sessions,
		eventBus:   eventBus,
		knowledge:  knowledge,
		tracer:     tracer,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSuffix(r.URL.Path, "/")

		switch {
		case r.Method == http.MethodPost && path == "/v1/agent/chat":
			s.handleChat(w, r)
		case r.Method == http.MethodGet && path == "/v1/events":
			s.handleBroadcastSSE(w, r)
		case r.Method == http.MethodGet && path == "/v1/actions":
			s.handleListActions(w, r)
		case r.Method == http.MethodPost && strings.HasPrefix(path, "/v1/actions/") && strings.HasSuffix(path, "/run"):
			s.handleRunAction(w, r)
		case r.Method == http.MethodGet && path == "/v1/traces":
			s.handleListTraces(w, r)
		case r.Method == http.MethodGet && strings.HasPrefix(path, "/v1/traces/"):
			s.handleGetTrace(w, r)
		case r.Method == http.MethodPost && path == "/v1/knowledge":
			s.handleSaveDocument(w, r)
		case r.Method == http.MethodGet && path == "/v1/sessions":
			s.handleListSessions(w, r)
		case r.Method == http.MethodGet && isSessionSubPath(path, "events"):
			s.handleSessionSSE(w, r)
		case r.Method == http.MethodGet && isSessionSubPath(path, "messages"):
			s.handleListMessages(w, r)
		default:
			mux.ServeHTTP(w, r)
		}
	})
}

// isSessionSubPath matches /v1/sessions/{id}/{leaf}.
func isSessionSubPath(path, leaf string) bool {
	return sessionIDFromPath(path, leaf) != ""
}

func sessionIDFromPath(path, leaf string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "v1" || parts[1] != "sessions" || parts[3] != leaf {
		return ""
	}
	return parts[2]
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID  string             `json:"session_id"`
	Answer     string             `json:"answer"`
	Status     domain.AgentStatus `json:"status"`
	Iterations int                `json:"iterations"`
	Retries    int                `json:"retries"`
}

// handleChat runs one request through the reasoning loop.
// POST /v1/agent/chat
// Body: {"session_id": "...", "message": "..."}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	sessionID := domain.SessionID(req.SessionID)

	// resolve the session first so live events go to the right channel
	if s.sessions != nil {
		sess, err := s.sessions.EnsureSession(ctx, sessionID, req.Message)
		if err != nil {
			s.logger.Error("failed to resolve session", "session_id", req.SessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "session unavailable")
			return
		}
		sessionID = sess.ID
	}

	var sink services.ContentSink
	if s.eventBus != nil && sessionID != "" {
		sink = services.NewEventBusSink(s.eventBus, sessionID)
	}

	resp, sessionID, err := s.agent.Chat(ctx, sessionID, req.Message, sink)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Info("chat request cancelled by client", "session_id", string(sessionID))
			return
		}
		s.logger.Error("chat failed", "session_id", string(sessionID), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := chatResponse{
		SessionID:  string(sessionID),
		Answer:     resp.Answer,
		Status:     resp.Status,
		Iterations: resp.Iterations,
		Retries:    resp.Retries,
	}
	if s.eventBus != nil {
		s.eventBus.PublishJSON(string(sessionID), services.EventTypeAnswer, out)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListActions returns the registry catalogue.
// GET /v1/actions
func (s *Server) handleListActions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Registry().ListActions())
}

// handleRunAction dispatches one action directly, outside the reasoning loop.
// POST /v1/actions/{name}/run
// Body: {"session_id": "...", "params": {...}}
func (s *Server) handleRunAction(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/"), "/v1/actions/"), "/run")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusBadRequest, "missing action name")
		return
	}

	var body struct {
		SessionID string                 `json:"session_id,omitempty"`
		Params    map[string]interface{} `json:"params"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Params == nil {
		body.Params = map[string]interface{}{}
	}

	ctx, cancel := context.WithTimeout(r.Context(), actionTimeout)
	defer cancel()

	start := time.Now()
	resp := s.dispatcher.Dispatch(ctx, domain.SessionID(body.SessionID), name, body.Params)
	s.logger.Info("action run over http", "action", name, "status", resp.Status(), "duration_ms", time.Since(start).Milliseconds())

	status := http.StatusOK
	if !resp.Result.IsSuccess() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// GET /v1/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": []domain.Session{}, "count": 0})
		return
	}
	list, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if list == nil {
		list = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": list, "count": len(list)})
}

// GET /v1/sessions/{id}/messages?limit=N
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, "sessions are not enabled")
		return
	}
	id := domain.SessionID(sessionIDFromPath(strings.TrimSuffix(r.URL.Path, "/"), "messages"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	if _, err := s.sessions.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	msgs, err := s.sessions.GetMessages(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to list messages", "session_id", string(id), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "messages": msgs, "count": len(msgs)})
}

// GET /v1/traces?limit=N
func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	traces := s.tracer.ListTraces(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{"traces": traces, "count": len(traces)})
}

// GET /v1/traces/{id}
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/"), "/v1/traces/")
	trace, err := s.tracer.GetTrace(domain.TraceID(id))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// handleSaveDocument stores a reference document for knowledge_query.
// POST /v1/knowledge
// Body: {"id": "...", "title": "...", "body": "...", "tags": [...]}
func (s *Server) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge base not available")
		return
	}

	var doc domain.KnowledgeDocument
	if err := decodeBody(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.Body) == "" {
		writeError(w, http.StatusBadRequest, "title and body are required")
		return
	}
	if doc.ID == "" {
		doc.ID = "kb-" + uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	if err := s.knowledge.SaveDocument(r.Context(), doc); err != nil {
		s.logger.Error("failed to save document", "id", doc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save document")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
