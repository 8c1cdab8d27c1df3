package ports

import (
	"context"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// Repository abstracts the persistent storage (DuckDB)
type Repository interface {
	// Sessions
	CreateSession(ctx context.Context, sess domain.Session) error
	GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)

	// Messages
	AddMessage(ctx context.Context, msg domain.Message) error
	// ListMessages returns the last limit messages oldest-first; limit=0 means all.
	ListMessages(ctx context.Context, sessionID domain.SessionID, limit int) ([]domain.Message, error)

	KnowledgeBase
}

// KnowledgeBase stores and searches reference documents for knowledge_query.
type KnowledgeBase interface {
	SaveDocument(ctx context.Context, doc domain.KnowledgeDocument) error
	GetDocument(ctx context.Context, id string) (domain.KnowledgeDocument, error)
	SearchDocuments(ctx context.Context, query string, limit int) ([]domain.KnowledgeHit, error)
}

// InventoryClient is the narrow contract to the inventory backend.
type InventoryClient interface {
	GetItem(ctx context.Context, sku string) (domain.InventoryItem, error)
	SearchItems(ctx context.Context, query string, limit int) ([]domain.InventoryItem, error)
}

// AlertPublisher pushes alerts to devices.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert domain.DeviceAlert) error
}
