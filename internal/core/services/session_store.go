package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/ports"
)

// SessionStore manages sessions with an in-memory cache backed by DuckDB.
// Hot sessions stay in memory; cold ones are loaded on demand.
type SessionStore struct {
	mu   sync.RWMutex
	repo ports.Repository

	// sessionID -> messages ordered by time
	cache    map[domain.SessionID][]domain.Message
	order    []domain.SessionID // LRU order, most recent last
	maxCache int
}

// NewSessionStore creates a store with the given cache capacity.
func NewSessionStore(repo ports.Repository, maxCache int) *SessionStore {
	if maxCache <= 0 {
		maxCache = 64
	}
	return &SessionStore{
		repo:     repo,
		cache:    make(map[domain.SessionID][]domain.Message, maxCache),
		order:    make([]domain.SessionID, 0, maxCache),
		maxCache: maxCache,
	}
}

// CreateSession starts a new, empty session.
func (s *SessionStore) CreateSession(ctx context.Context, title string) (domain.Session, error) {
	now := time.Now()
	sess := domain.Session{
		ID:        domain.NewSessionID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}

	s.mu.Lock()
	s.cache[sess.ID] = nil
	s.touchLocked(sess.ID)
	s.evictLocked()
	s.mu.Unlock()

	return sess, nil
}

// EnsureSession returns the session with id, creating a new one titled
// after the first message when id is empty or unknown.
func (s *SessionStore) EnsureSession(ctx context.Context, id domain.SessionID, firstMessage string) (domain.Session, error) {
	if id != "" {
		sess, err := s.repo.GetSession(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return domain.Session{}, err
		}
	}
	return s.CreateSession(ctx, truncate(firstMessage, 50))
}

func (s *SessionStore) GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	return s.repo.GetSession(ctx, id)
}

// ListSessions returns all sessions, most recently updated first.
func (s *SessionStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return s.repo.ListSessions(ctx)
}

// AddMessage persists a message and updates the cache.
func (s *SessionStore) AddMessage(ctx context.Context, msg domain.Message) error {
	if msg.ID == "" {
		msg.ID = domain.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		return fmt.Errorf("add message: %w", err)
	}

	s.mu.Lock()
	if msgs, ok := s.cache[msg.SessionID]; ok {
		s.cache[msg.SessionID] = append(msgs, msg)
	}
	s.touchLocked(msg.SessionID)
	s.mu.Unlock()

	return nil
}

// GetMessages returns the messages of a session, oldest first. limit=0
// means all of them and is served from the cache when possible.
func (s *SessionStore) GetMessages(ctx context.Context, id domain.SessionID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	if msgs, ok := s.cache[id]; ok && msgs != nil {
		result := tail(msgs, limit)
		s.mu.RUnlock()
		return result, nil
	}
	s.mu.RUnlock()

	msgs, err := s.repo.ListMessages(ctx, id, limit)
	if err != nil {
		return nil, err
	}

	if limit == 0 {
		s.mu.Lock()
		s.cache[id] = msgs
		s.touchLocked(id)
		s.evictLocked()
		s.mu.Unlock()
	}
	return msgs, nil
}

// BuildContextWindow formats the last maxMessages messages for the framing
// step of a new chain.
func (s *SessionStore) BuildContextWindow(ctx context.Context, id domain.SessionID, maxMessages int) (string, error) {
	if maxMessages <= 0 {
		maxMessages = 20
	}

	msgs, err := s.GetMessages(ctx, id, maxMessages)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.Grow(len(msgs) * 200)
	for _, msg := range msgs {
		switch msg.Role {
		case domain.RoleUser:
			sb.WriteString("User: ")
		case domain.RoleAssistant:
			sb.WriteString("Assistant: ")
		case domain.RoleAgent:
			sb.WriteString("Agent message: ")
		default:
			continue
		}
		sb.WriteString(msg.Content)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func tail(msgs []domain.Message, limit int) []domain.Message {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

// --- LRU helpers (must be called with mu held) ---

func (s *SessionStore) touchLocked(id domain.SessionID) {
	s.removeLRULocked(id)
	s.order = append(s.order, id)
}

func (s *SessionStore) removeLRULocked(id domain.SessionID) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *SessionStore) evictLocked() {
	for len(s.order) > s.maxCache {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, oldest)
	}
}
