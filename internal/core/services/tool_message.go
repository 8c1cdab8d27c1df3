package services

import (
	"context"
	"fmt"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// BroadcastChannel is the well-known EventBus key for agent messages that
// every client should see.
const BroadcastChannel = "__broadcast__"

// NewSendMessageFunction lets the agent post a message into the session,
// optionally carrying the last successful action result of that session.
// The message is persisted and pushed live through the event bus.
func NewSendMessageFunction(sessions *SessionStore, events *EventBus, results *ResultCache) *domain.RegisteredFunction {
	return &domain.RegisteredFunction{
		Name:        "send_message",
		Description: "Sends a message to the user of this session right away. Set attach_last_result to include the latest action result.",
		Required:    []string{"content"},
		Schema: openapi3.NewObjectSchema().
			WithProperty("content", describe(openapi3.NewStringSchema().WithMinLength(1), "The message text")).
			WithProperty("attach_last_result", describe(openapi3.NewBoolSchema(), "Attach the last successful action result")),
		Examples: []domain.FunctionExample{
			{Query: "Let me know the stock count as soon as you have it", ExpectedCall: map[string]interface{}{"action": "send_message", "parameters": map[string]interface{}{"content": "Here is the stock count", "attach_last_result": true}}},
		},
		WantsSession:    true,
		SkipResultCache: true,
		Implementation: func(ctx context.Context, inv domain.Invocation) (interface{}, error) {
			if inv.SessionID == "" {
				return domain.Failure("send_message needs an active session"), nil
			}

			content := inv.String("content")
			var attached *domain.FunctionResponse
			if inv.Bool("attach_last_result") && results != nil {
				if last, ok := results.Take(inv.SessionID); ok {
					attached = &last
					content += "\n\n" + last.String()
				}
			}

			msg := domain.Message{
				ID:        domain.NewMessageID(),
				SessionID: inv.SessionID,
				Role:      domain.RoleAgent,
				Content:   content,
				CreatedAt: time.Now(),
			}
			if err := sessions.AddMessage(ctx, msg); err != nil {
				return nil, fmt.Errorf("store message: %w", err)
			}

			if events != nil {
				events.PublishJSON(string(inv.SessionID), EventTypeMessage, msg)
				events.PublishJSON(BroadcastChannel, EventTypeMessage, msg)
			}

			return map[string]interface{}{
				"message_id":      string(msg.ID),
				"delivered":       true,
				"attached_result": attached != nil,
			}, nil
		},
	}
}
