package domain

import (
	"errors"
	"time"
)

// KnowledgeDocument is a stored piece of reference text the agent can query.
type KnowledgeDocument struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeHit is a search match with its term score.
type KnowledgeHit struct {
	Document KnowledgeDocument `json:"document"`
	Score    int               `json:"score"`
}

var ErrDocumentNotFound = errors.New("knowledge document not found")
