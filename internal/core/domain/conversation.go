package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionID uniquely identifies a chat session
type SessionID string

// MessageID uniquely identifies a message within a session
type MessageID string

// MessageRole defines who authored a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleAgent     MessageRole = "agent" // proactive messages sent through send_message
)

// Session represents a multi-turn chat session
type Session struct {
	ID        SessionID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a single turn in a session
type Message struct {
	ID        MessageID   `json:"id"`
	SessionID SessionID   `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

var (
	ErrSessionNotFound = errors.New("session not found")
)

// NewSessionID generates a random session ID (sess-<uuid>)
func NewSessionID() SessionID {
	return SessionID("sess-" + uuid.NewString())
}

// NewMessageID generates a random message ID (msg-<uuid>)
func NewMessageID() MessageID {
	return MessageID("msg-" + uuid.NewString())
}
