package services

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/ports"
)

// NewKnowledgeQueryFunction searches the knowledge base.
func NewKnowledgeQueryFunction(kb ports.KnowledgeBase) *domain.RegisteredFunction {
	return &domain.RegisteredFunction{
		Name:        "knowledge_query",
		Description: "Searches the team knowledge base (procedures, manuals, policies) and returns the best matching documents.",
		Required:    []string{"question"},
		Schema: openapi3.NewObjectSchema().
			WithProperty("question", describe(openapi3.NewStringSchema().WithMinLength(1), "What to look for, in plain words")).
			WithProperty("limit", limitSchema(10, "Maximum number of documents (default 3)")),
		Examples: []domain.FunctionExample{
			{Query: "What is the return policy for damaged goods?", ExpectedCall: map[string]interface{}{"action": "knowledge_query", "parameters": map[string]interface{}{"question": "return policy damaged goods"}}},
		},
		Implementation: func(ctx context.Context, inv domain.Invocation) (interface{}, error) {
			question := inv.String("question")
			hits, err := kb.SearchDocuments(ctx, question, inv.Int("limit", 3))
			if err != nil {
				return nil, fmt.Errorf("knowledge search: %w", err)
			}
			if len(hits) == 0 {
				return domain.Failuref("no documents match %q", question), nil
			}

			results := make([]map[string]interface{}, 0, len(hits))
			for _, h := range hits {
				results = append(results, map[string]interface{}{
					"id":    h.Document.ID,
					"title": h.Document.Title,
					"body":  truncate(h.Document.Body, 2000),
					"score": h.Score,
				})
			}
			return map[string]interface{}{"documents": results}, nil
		},
	}
}
