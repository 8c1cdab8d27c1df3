package services

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/ports"
)

// FunctionDeps carries the collaborators the built-in functions need.
// A function whose collaborator is nil is left out of the registry.
type FunctionDeps struct {
	Inventory ports.InventoryClient
	Knowledge ports.KnowledgeBase
	Alerts    ports.AlertPublisher
	Sessions  *SessionStore
	Events    *EventBus
	Results   *ResultCache
}

// NewDefaultFunctions returns the built-in functions ready for NewRegistry.
func NewDefaultFunctions(deps FunctionDeps) []*domain.RegisteredFunction {
	var fns []*domain.RegisteredFunction
	if deps.Inventory != nil {
		fns = append(fns, NewInventoryLookupFunction(deps.Inventory))
	}
	if deps.Knowledge != nil {
		fns = append(fns, NewKnowledgeQueryFunction(deps.Knowledge))
	}
	if deps.Sessions != nil {
		fns = append(fns,
			NewSendMessageFunction(deps.Sessions, deps.Events, deps.Results),
			NewRecallHistoryFunction(deps.Sessions),
		)
	}
	if deps.Alerts != nil {
		fns = append(fns, NewDeviceAlertFunction(deps.Alerts))
	}
	return fns
}

func describe(s *openapi3.Schema, description string) *openapi3.Schema {
	s.Description = description
	return s
}

func limitSchema(max float64, description string) *openapi3.Schema {
	return describe(openapi3.NewIntegerSchema().WithMin(1).WithMax(max), description)
}
