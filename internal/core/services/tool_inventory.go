package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/ports"
)

// NewInventoryLookupFunction looks items up by SKU or searches by free text.
func NewInventoryLookupFunction(inventory ports.InventoryClient) *domain.RegisteredFunction {
	return &domain.RegisteredFunction{
		Name:        "inventory_lookup",
		Description: "Looks up stock in the inventory. Pass sku for an exact item, or query to search by name.",
		Schema: openapi3.NewObjectSchema().
			WithProperty("sku", describe(openapi3.NewStringSchema(), "Exact SKU of the item, e.g. 'AB-1234'")).
			WithProperty("query", describe(openapi3.NewStringSchema(), "Free text to search item names")).
			WithProperty("limit", limitSchema(50, "Maximum number of search results (default 10)")),
		Examples: []domain.FunctionExample{
			{Query: "How many AB-1234 do we have?", ExpectedCall: map[string]interface{}{"action": "inventory_lookup", "parameters": map[string]interface{}{"sku": "AB-1234"}}},
			{Query: "Do we still stock hex bolts?", ExpectedCall: map[string]interface{}{"action": "inventory_lookup", "parameters": map[string]interface{}{"query": "hex bolt"}}},
		},
		Implementation: func(ctx context.Context, inv domain.Invocation) (interface{}, error) {
			if sku := inv.String("sku"); sku != "" {
				item, err := inventory.GetItem(ctx, sku)
				if errors.Is(err, domain.ErrItemNotFound) {
					return domain.Failuref("no inventory item with SKU %q", sku), nil
				}
				if err != nil {
					return nil, fmt.Errorf("inventory lookup: %w", err)
				}
				return item, nil
			}

			query := inv.String("query")
			if query == "" {
				return domain.Failure("either sku or query must be provided"), nil
			}
			items, err := inventory.SearchItems(ctx, query, inv.Int("limit", 10))
			if err != nil {
				return nil, fmt.Errorf("inventory search: %w", err)
			}
			return map[string]interface{}{
				"query": query,
				"count": len(items),
				"items": items,
			}, nil
		},
	}
}
