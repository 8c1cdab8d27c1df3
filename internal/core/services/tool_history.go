package services

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// NewRecallHistoryFunction returns recent messages of the current session.
func NewRecallHistoryFunction(sessions *SessionStore) *domain.RegisteredFunction {
	return &domain.RegisteredFunction{
		Name:         "recall_history",
		Description:  "Returns the most recent messages of this session, oldest first.",
		Schema:       openapi3.NewObjectSchema().WithProperty("limit", limitSchema(100, "How many messages (default 10)")),
		WantsSession: true,
		Implementation: func(ctx context.Context, inv domain.Invocation) (interface{}, error) {
			if inv.SessionID == "" {
				return domain.Failure("recall_history needs an active session"), nil
			}
			msgs, err := sessions.GetMessages(ctx, inv.SessionID, inv.Int("limit", 10))
			if err != nil {
				return nil, fmt.Errorf("load history: %w", err)
			}

			out := make([]map[string]interface{}, 0, len(msgs))
			for _, m := range msgs {
				out = append(out, map[string]interface{}{
					"role":       m.Role,
					"content":    m.Content,
					"created_at": m.CreatedAt,
				})
			}
			return map[string]interface{}{"messages": out}, nil
		},
	}
}
