package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Invocation) (interface{}, error) { return nil, nil }

func lookupFn() *RegisteredFunction {
	return &RegisteredFunction{
		Name:        "inventory_lookup",
		Description: "Looks up stock",
		Required:    []string{"sku"},
		Schema: openapi3.NewObjectSchema().
			WithProperty("sku", openapi3.NewStringSchema()).
			WithProperty("limit", openapi3.NewIntegerSchema()),
		Examples: []FunctionExample{
			{Query: "stock of AB-1", ExpectedCall: map[string]interface{}{"action": "inventory_lookup"}},
		},
		Implementation: noop,
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	cases := map[string][]*RegisteredFunction{
		"nil":            {nil},
		"empty name":     {{Name: " ", Implementation: noop}},
		"reserved":       {{Name: "No_Action", Implementation: noop}},
		"no impl":        {{Name: "x"}},
		"duplicate name": {{Name: "x", Implementation: noop}, {Name: "x", Implementation: noop}},
	}
	for name, fns := range cases {
		_, err := NewRegistry(fns...)
		assert.Error(t, err, name)
	}
}

func TestRegistry_Catalogue(t *testing.T) {
	r, err := NewRegistry(lookupFn(), &RegisteredFunction{Name: "alpha", Description: "first", Implementation: noop})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "inventory_lookup"}, r.Names())

	fn, ok := r.Lookup("inventory_lookup")
	require.True(t, ok)
	assert.Equal(t, []string{"sku"}, fn.Schema.Required)
	assert.Equal(t, []string{"sku", "limit"}, fn.DeclaredParameters())
	assert.Equal(t, "inventory_lookup(sku, [limit])", fn.Signature())

	_, ok = r.Lookup("Inventory_Lookup")
	assert.False(t, ok)

	raw, err := json.Marshal(r.ListActions())
	require.NoError(t, err)
	var catalog struct {
		AvailableActions []struct {
			Action      string                 `json:"action"`
			Parameters  map[string]interface{} `json:"parameters"`
			Description string                 `json:"description"`
			Examples    []interface{}          `json:"examples"`
		} `json:"available_actions"`
	}
	require.NoError(t, json.Unmarshal(raw, &catalog))
	require.Len(t, catalog.AvailableActions, 2)
	assert.Equal(t, "alpha", catalog.AvailableActions[0].Action)
	assert.NotNil(t, catalog.AvailableActions[0].Examples)
	assert.Equal(t, "object", catalog.AvailableActions[1].Parameters["type"])
	assert.Equal(t, []interface{}{"sku"}, catalog.AvailableActions[1].Parameters["required"])
	assert.Len(t, catalog.AvailableActions[1].Examples, 1)
}

func TestNewRegistry_CopiesFunctions(t *testing.T) {
	fn := lookupFn()
	fn.Schema.Required = []string{"stale"}
	r, err := NewRegistry(fn, &RegisteredFunction{Name: "bare", Implementation: noop})
	require.NoError(t, err)

	assert.Equal(t, []string{"stale"}, fn.Schema.Required, "caller schema left untouched")

	fn.Name = "renamed"
	fn.Required = append(fn.Required, "limit")
	fn.Schema.Properties["extra"] = openapi3.NewSchemaRef("", openapi3.NewStringSchema())
	fn.Implementation = nil

	got, ok := r.Lookup("inventory_lookup")
	require.True(t, ok)
	assert.Equal(t, "inventory_lookup", got.Name)
	assert.Equal(t, []string{"sku"}, got.Required)
	assert.Equal(t, []string{"sku"}, got.Schema.Required)
	assert.NotContains(t, got.Schema.Properties, "extra")
	assert.NotNil(t, got.Implementation)

	bare, ok := r.Lookup("bare")
	require.True(t, ok)
	require.NotNil(t, bare.Schema)
	assert.True(t, bare.Schema.Type.Is(openapi3.TypeObject))
}

func TestRegistry_FormatForPrompt(t *testing.T) {
	r, err := NewRegistry(lookupFn())
	require.NoError(t, err)

	out := r.FormatForPrompt()
	assert.Contains(t, out, "- inventory_lookup(sku, [limit]): Looks up stock")
	assert.Contains(t, out, `e.g. "stock of AB-1"`)
	assert.Contains(t, out, "- no_action:")
}

func TestRegistry_Suggest(t *testing.T) {
	r, err := NewRegistry(lookupFn(),
		&RegisteredFunction{Name: "knowledge_query", Implementation: noop},
		&RegisteredFunction{Name: "send_message", Implementation: noop})
	require.NoError(t, err)

	assert.Equal(t, "inventory_lookup", r.Suggest("lookup_inventory"))
	assert.Equal(t, "knowledge_query", r.Suggest("query_knowledge_base"))
	assert.Equal(t, "send_message", r.Suggest("message"))
	assert.Empty(t, r.Suggest("teleport"))
}

func TestFunctionResult(t *testing.T) {
	ok := Success(map[string]int{"n": 1})
	assert.True(t, ok.IsSuccess())
	assert.Equal(t, StatusSuccess, ok.Status())

	var zero FunctionResult
	assert.False(t, zero.IsSuccess())

	failed := Failuref("missing %s", "sku")
	assert.Equal(t, StatusFailure, failed.Status())
	assert.Equal(t, "missing sku", failed.Message())

	assert.JSONEq(t, `{"action_name":"a","status":"SUCCESS","value":{"n":1}}`, NewFunctionResponse("a", ok).String())
	assert.JSONEq(t, `{"action_name":"a","status":"FAILURE","response":"missing sku"}`, NewFunctionResponse("a", failed).String())
}

func TestInvocation_Accessors(t *testing.T) {
	inv := Invocation{Params: map[string]interface{}{
		"s": "text",
		"f": float64(7),
		"i": 3,
		"n": json.Number("12"),
		"b": true,
	}}
	assert.Equal(t, "text", inv.String("s"))
	assert.Equal(t, "", inv.String("f"))
	assert.Equal(t, 7, inv.Int("f", 0))
	assert.Equal(t, 3, inv.Int("i", 0))
	assert.Equal(t, 12, inv.Int("n", 0))
	assert.Equal(t, 10, inv.Int("missing", 10))
	assert.True(t, inv.Bool("b"))
	assert.False(t, inv.Bool("s"))
}

func TestChain(t *testing.T) {
	c := NewChain("system prompt", "how many AB-1?")
	c.Append(StepAssistantPlan, `{"action":"no_action"}`)

	assert.Equal(t, 3, c.Len())
	steps := c.Steps()
	assert.Equal(t, StepSystem, steps[0].Kind)
	steps[0].Content = "mutated"
	assert.Equal(t, "system prompt", c.Steps()[0].Content)

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, StepAssistantPlan, last.Kind)

	formatted := c.Format()
	assert.NotContains(t, formatted, "system prompt")
	assert.Equal(t, "User request: how many AB-1?\n\nThought: {\"action\":\"no_action\"}", formatted)
}

func TestAction_IsNoAction(t *testing.T) {
	assert.True(t, Action{Name: " NO_action "}.IsNoAction())
	assert.False(t, Action{Name: "no_actions"}.IsNoAction())
}

func TestIsStructural(t *testing.T) {
	assert.True(t, IsStructural(&MalformedActionError{Stage: "action"}))
	assert.True(t, IsStructural(fmt.Errorf("wrapped: %w", &UnknownFunctionError{Name: "x"})))
	assert.True(t, IsStructural(fmt.Errorf("%w: timeout", ErrGeneration)))
	assert.False(t, IsStructural(errors.New("disk full")))
	assert.False(t, IsStructural(context.Canceled))
}

func TestFailedResponse(t *testing.T) {
	resp := FailedResponse("the retry budget of 3 was exhausted", 4, 3)
	assert.Equal(t, AgentStatusFailed, resp.Status)
	assert.Equal(t, "I could not complete this request: the retry budget of 3 was exhausted.", resp.Answer)
	assert.Equal(t, 4, resp.Iterations)
	assert.Equal(t, 3, resp.Retries)
}
