package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// FunctionStatus is the outcome tag of a dispatched function.
type FunctionStatus string

const (
	StatusSuccess FunctionStatus = "SUCCESS"
	StatusFailure FunctionStatus = "FAILURE"
)

// FunctionResult is a tagged variant: either Success(payload) or Failure(message).
// The zero value is a failure with an empty message.
type FunctionResult struct {
	ok      bool
	payload interface{}
	message string
}

// Success wraps a successful payload.
func Success(payload interface{}) FunctionResult {
	return FunctionResult{ok: true, payload: payload}
}

// Failure wraps a failure message.
func Failure(message string) FunctionResult {
	return FunctionResult{message: message}
}

// Failuref formats a failure message.
func Failuref(format string, args ...interface{}) FunctionResult {
	return FunctionResult{message: fmt.Sprintf(format, args...)}
}

func (r FunctionResult) IsSuccess() bool      { return r.ok }
func (r FunctionResult) Payload() interface{} { return r.payload }
func (r FunctionResult) Message() string      { return r.message }

func (r FunctionResult) Status() FunctionStatus {
	if r.ok {
		return StatusSuccess
	}
	return StatusFailure
}

// FunctionResponse is the uniform envelope returned by every dispatch.
type FunctionResponse struct {
	ActionName string
	Result     FunctionResult
}

// NewFunctionResponse tags a result with the action that produced it.
func NewFunctionResponse(actionName string, result FunctionResult) FunctionResponse {
	return FunctionResponse{ActionName: actionName, Result: result}
}

func (r FunctionResponse) Status() FunctionStatus { return r.Result.Status() }

// MarshalJSON renders {"action_name","status","value"} on success and
// {"action_name","status","response"} on failure.
func (r FunctionResponse) MarshalJSON() ([]byte, error) {
	if r.Result.ok {
		return json.Marshal(struct {
			ActionName string         `json:"action_name"`
			Status     FunctionStatus `json:"status"`
			Value      interface{}    `json:"value"`
		}{r.ActionName, StatusSuccess, r.Result.payload})
	}
	return json.Marshal(struct {
		ActionName string         `json:"action_name"`
		Status     FunctionStatus `json:"status"`
		Response   string         `json:"response"`
	}{r.ActionName, StatusFailure, r.Result.message})
}

// String renders the envelope as JSON for prompts and logs.
func (r FunctionResponse) String() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"action_name":%q,"status":%q,"response":%q}`, r.ActionName, StatusFailure, err.Error())
	}
	return string(raw)
}

// FunctionExample is a few-shot pair fed back into planning prompts.
type FunctionExample struct {
	Query        string                 `json:"query"`
	ExpectedCall map[string]interface{} `json:"expected_call"`
}

// Invocation carries the validated parameters into an implementation.
// SessionID is only populated when the function asks for it.
type Invocation struct {
	SessionID SessionID
	Params    map[string]interface{}
}

// String returns a string parameter or "" when absent or not a string.
func (inv Invocation) String(key string) string {
	s, _ := inv.Params[key].(string)
	return s
}

// Int returns an integer parameter, falling back to def when absent.
func (inv Invocation) Int(key string, def int) int {
	switch v := inv.Params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// Bool returns a boolean parameter or false.
func (inv Invocation) Bool(key string) bool {
	b, _ := inv.Params[key].(bool)
	return b
}

// FunctionImpl executes a registered function. It may return a plain value,
// a FunctionResult, or an error.
type FunctionImpl func(ctx context.Context, inv Invocation) (interface{}, error)

// RegisteredFunction describes one action the agent can dispatch.
type RegisteredFunction struct {
	Name         string
	Description  string
	Required     []string
	Schema       *openapi3.Schema
	Examples     []FunctionExample
	WantsSession bool
	// SkipResultCache keeps the response out of the session's last-result
	// cache, for functions that consume that cache themselves.
	SkipResultCache bool
	Implementation  FunctionImpl
}

// clone copies the function together with its schema so the registry never
// shares mutable state with the caller.
func (f *RegisteredFunction) clone() *RegisteredFunction {
	out := *f
	out.Required = append([]string(nil), f.Required...)
	out.Examples = append([]FunctionExample(nil), f.Examples...)
	if f.Schema == nil {
		out.Schema = openapi3.NewObjectSchema()
	} else {
		schema := *f.Schema
		schema.Properties = make(openapi3.Schemas, len(f.Schema.Properties))
		for name, ref := range f.Schema.Properties {
			schema.Properties[name] = ref
		}
		out.Schema = &schema
	}
	out.Schema.Required = append([]string(nil), f.Required...)
	return &out
}

// DeclaredParameters returns the required parameters followed by the
// optional ones declared in the schema, in a stable order.
func (f *RegisteredFunction) DeclaredParameters() []string {
	seen := make(map[string]struct{}, len(f.Required))
	params := make([]string, 0, len(f.Required))
	for _, name := range f.Required {
		seen[name] = struct{}{}
		params = append(params, name)
	}
	if f.Schema == nil {
		return params
	}
	optional := make([]string, 0, len(f.Schema.Properties))
	for name := range f.Schema.Properties {
		if _, ok := seen[name]; !ok {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	return append(params, optional...)
}

// Signature renders the call shape, e.g. inventory_lookup(sku, [limit]).
func (f *RegisteredFunction) Signature() string {
	required := make(map[string]struct{}, len(f.Required))
	for _, name := range f.Required {
		required[name] = struct{}{}
	}
	parts := make([]string, 0, len(f.Required))
	for _, name := range f.DeclaredParameters() {
		if _, ok := required[name]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, "["+name+"]")
		}
	}
	return f.Name + "(" + strings.Join(parts, ", ") + ")"
}

// ActionDefinition is the introspection shape of one registered function.
type ActionDefinition struct {
	Action      string            `json:"action"`
	Parameters  *openapi3.Schema  `json:"parameters"`
	Description string            `json:"description"`
	Examples    []FunctionExample `json:"examples"`
}

// ActionCatalog is returned by Registry.ListActions.
type ActionCatalog struct {
	AvailableActions []ActionDefinition `json:"available_actions"`
}

// Registry is the immutable action table. Build it once at startup and
// share it freely between sessions.
type Registry struct {
	functions map[string]*RegisteredFunction
	names     []string
}

// NewRegistry builds a registry. Empty or duplicate names and missing
// implementations are rejected.
func NewRegistry(fns ...*RegisteredFunction) (*Registry, error) {
	r := &Registry{functions: make(map[string]*RegisteredFunction, len(fns))}
	for _, fn := range fns {
		if fn == nil || strings.TrimSpace(fn.Name) == "" {
			return nil, fmt.Errorf("function name cannot be empty")
		}
		if strings.EqualFold(fn.Name, NoActionName) {
			return nil, fmt.Errorf("function name %q is reserved", fn.Name)
		}
		if fn.Implementation == nil {
			return nil, fmt.Errorf("function %s has no implementation", fn.Name)
		}
		if _, dup := r.functions[fn.Name]; dup {
			return nil, fmt.Errorf("function %s registered twice", fn.Name)
		}
		r.functions[fn.Name] = fn.clone()
		r.names = append(r.names, fn.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns a function by exact name.
func (r *Registry) Lookup(name string) (*RegisteredFunction, bool) {
	fn, ok := r.functions[name]
	return fn, ok
}

// Names returns every registered action name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// ListActions returns the full catalogue, sorted by name.
func (r *Registry) ListActions() ActionCatalog {
	defs := make([]ActionDefinition, 0, len(r.names))
	for _, name := range r.names {
		fn := r.functions[name]
		examples := fn.Examples
		if examples == nil {
			examples = []FunctionExample{}
		}
		defs = append(defs, ActionDefinition{
			Action:      fn.Name,
			Parameters:  fn.Schema,
			Description: fn.Description,
			Examples:    examples,
		})
	}
	return ActionCatalog{AvailableActions: defs}
}

// FormatForPrompt renders a compact catalogue: name(signature): description.
func (r *Registry) FormatForPrompt() string {
	var sb strings.Builder
	sb.WriteString("Available actions:\n")
	for _, name := range r.names {
		fn := r.functions[name]
		fmt.Fprintf(&sb, "- %s: %s\n", fn.Signature(), fn.Description)
		for _, ex := range fn.Examples {
			call, _ := json.Marshal(ex.ExpectedCall)
			fmt.Fprintf(&sb, "    e.g. %q -> %s\n", ex.Query, call)
		}
	}
	fmt.Fprintf(&sb, "- %s: nothing needs to be executed this round\n", NoActionName)
	return sb.String()
}

// Suggest returns the closest registered name for a misspelled one, or "".
// It scores word overlap on underscore-separated words and breaks ties by
// Levenshtein distance.
func (r *Registry) Suggest(input string) string {
	inputWords := splitWords(input)

	bestName := ""
	bestScore := 0
	for _, name := range r.names {
		score := wordOverlapScore(inputWords, splitWords(name))
		if score > bestScore {
			bestScore = score
			bestName = name
		} else if score == bestScore && score > 0 {
			if levenshtein(input, name) < levenshtein(input, bestName) {
				bestName = name
			}
		}
	}
	if bestScore >= 1 {
		return bestName
	}
	return ""
}

func splitWords(name string) []string {
	parts := []string{}
	for _, p := range strings.Split(strings.ToLower(name), "_") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func wordOverlapScore(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, w := range b {
		set[w] = true
	}
	score := 0
	for _, w := range a {
		if set[w] {
			score++
		}
	}
	return score
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, min(prev[j]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
