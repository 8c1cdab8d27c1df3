package services

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

const (
	callPlan    = "plan"
	callObserve = "observe"
	callParams  = "params"
	callRepair  = "repair"
)

// fakeLLM answers by call kind, recognised from the system instruction.
// Each queue is consumed in order and its last entry repeats.
type fakeLLM struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	calls   map[string]int
	prompts map[string][]string
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		replies: map[string][]string{},
		errs:    map[string]error{},
		calls:   map[string]int{},
		prompts: map[string][]string{},
	}
}

func (f *fakeLLM) on(kind string, replies ...string) *fakeLLM {
	f.replies[kind] = replies
	return f
}

func (f *fakeLLM) fail(kind string, err error) *fakeLLM {
	f.errs[kind] = err
	return f
}

func (f *fakeLLM) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeLLM) lastPrompt(kind string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.prompts[kind]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func kindOf(system string) string {
	switch system {
	case observationSystem:
		return callObserve
	case parameterSystem:
		return callParams
	case repairSystem:
		return callRepair
	default:
		return callPlan
	}
}

func (f *fakeLLM) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind := kindOf(system)

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls[kind]
	f.calls[kind]++
	f.prompts[kind] = append(f.prompts[kind], prompt)

	if err := f.errs[kind]; err != nil {
		return "", err
	}
	q := f.replies[kind]
	if len(q) == 0 {
		return "", nil
	}
	if idx >= len(q) {
		idx = len(q) - 1
	}
	return q[idx], nil
}

// fakeStreamingLLM streams the same replies in 3-byte fragments.
type fakeStreamingLLM struct {
	*fakeLLM
}

func (f fakeStreamingLLM) StreamText(ctx context.Context, prompt, system string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := f.GenerateText(ctx, prompt, system)
		if err != nil {
			yield("", err)
			return
		}
		for _, fragment := range chunk(text, 3) {
			if !yield(fragment, nil) {
				return
			}
		}
		yield(domain.StreamSentinel, nil)
	}
}

func chunk(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func fragmentsOf(parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// recordingSink collects demultiplexed content and steps.
type recordingSink struct {
	mu      sync.Mutex
	chunks  map[string][]string
	ends    map[string]int
	order   []string
	steps   []domain.ReasoningStep
	entries []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{chunks: map[string][]string{}, ends: map[string]int{}}
}

func (s *recordingSink) Content(messageID, c string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.chunks[messageID]; !seen {
		s.order = append(s.order, messageID)
	}
	s.chunks[messageID] = append(s.chunks[messageID], c)
	s.entries = append(s.entries, "content:"+c)
}

func (s *recordingSink) EndOfField(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends[messageID]++
	s.entries = append(s.entries, "end")
}

func (s *recordingSink) Step(step domain.ReasoningStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *recordingSink) text(messageID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.chunks[messageID], "")
}

// texts returns the content of every message in first-seen order.
func (s *recordingSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, strings.Join(s.chunks[id], ""))
	}
	return out
}

func (s *recordingSink) stepKinds() []domain.StepKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]domain.StepKind, 0, len(s.steps))
	for _, st := range s.steps {
		kinds = append(kinds, st.Kind)
	}
	return kinds
}

// memRepo is an in-memory ports.Repository.
type memRepo struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]domain.Session
	messages map[domain.SessionID][]domain.Message
	docs     map[string]domain.KnowledgeDocument
	listCnt  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions: map[domain.SessionID]domain.Session{},
		messages: map[domain.SessionID][]domain.Message{},
		docs:     map[string]domain.KnowledgeDocument{},
	}
}

func (r *memRepo) CreateSession(_ context.Context, sess domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
	return nil
}

func (r *memRepo) GetSession(_ context.Context, id domain.SessionID) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (r *memRepo) ListSessions(_ context.Context) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) AddMessage(_ context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[msg.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	r.messages[msg.SessionID] = append(r.messages[msg.SessionID], msg)
	return nil
}

func (r *memRepo) ListMessages(_ context.Context, id domain.SessionID, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCnt++
	return tail(r.messages[id], limit), nil
}

func (r *memRepo) SaveDocument(_ context.Context, doc domain.KnowledgeDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	return nil
}

func (r *memRepo) GetDocument(_ context.Context, id string) (domain.KnowledgeDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.KnowledgeDocument{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (r *memRepo) SearchDocuments(_ context.Context, query string, limit int) ([]domain.KnowledgeHit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hits []domain.KnowledgeHit
	q := strings.ToLower(query)
	for _, d := range r.docs {
		if strings.Contains(strings.ToLower(d.Title+" "+d.Body), q) {
			hits = append(hits, domain.KnowledgeHit{Document: d, Score: 1})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Document.ID < hits[j].Document.ID })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

var errBoom = errors.New("boom")
