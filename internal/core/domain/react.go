package domain

import (
	"fmt"
	"strings"
)

// StepKind classifies one entry of the chain of reasoning.
type StepKind string

const (
	StepSystem               StepKind = "system"
	StepUserRequest          StepKind = "user_request"
	StepAssistantPlan        StepKind = "assistant_plan"
	StepActionResult         StepKind = "action_result"
	StepAssistantObservation StepKind = "assistant_observation"
	StepError                StepKind = "error"
)

// ReasoningStep is one immutable entry of a Chain.
type ReasoningStep struct {
	Kind    StepKind `json:"step_kind"`
	Content string   `json:"content"`
}

// Chain is the append-only log of reasoning steps for a single request.
// It is owned by the invocation that created it and is never shared.
type Chain struct {
	steps []ReasoningStep
}

// NewChain seeds a chain with the system framing step and the user request.
func NewChain(system, request string) *Chain {
	c := &Chain{steps: make([]ReasoningStep, 0, 16)}
	c.Append(StepSystem, system)
	c.Append(StepUserRequest, request)
	return c
}

// Append adds a step to the end of the chain.
func (c *Chain) Append(kind StepKind, content string) {
	c.steps = append(c.steps, ReasoningStep{Kind: kind, Content: content})
}

// Len returns the number of steps.
func (c *Chain) Len() int {
	return len(c.steps)
}

// Steps returns a copy of the steps in order.
func (c *Chain) Steps() []ReasoningStep {
	out := make([]ReasoningStep, len(c.steps))
	copy(out, c.steps)
	return out
}

// Last returns the most recent step.
func (c *Chain) Last() (ReasoningStep, bool) {
	if len(c.steps) == 0 {
		return ReasoningStep{}, false
	}
	return c.steps[len(c.steps)-1], true
}

// Format renders the chain as prompt text. The system step is omitted
// because it travels as the system instruction of each call.
func (c *Chain) Format() string {
	var sb strings.Builder
	sb.Grow(len(c.steps) * 256)
	for _, step := range c.steps {
		if step.Kind == StepSystem {
			continue
		}
		sb.WriteString(stepLabel(step.Kind))
		sb.WriteString(": ")
		sb.WriteString(step.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func stepLabel(kind StepKind) string {
	switch kind {
	case StepUserRequest:
		return "User request"
	case StepAssistantPlan:
		return "Thought"
	case StepActionResult:
		return "Action result"
	case StepAssistantObservation:
		return "Observation"
	case StepError:
		return "Error"
	default:
		return string(kind)
	}
}

// NoActionName is the action a plan uses to signal that nothing needs to be dispatched.
const NoActionName = "no_action"

// Action is the model's statement of what to do. Intent carries the
// natural-language description; Parameters is only set when the model
// emitted a fully specified call.
type Action struct {
	Name       string                 `json:"action"`
	Intent     string                 `json:"action_prompt,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// IsNoAction reports whether the action is the no_action signal (case-insensitive).
func (a Action) IsNoAction() bool {
	return strings.EqualFold(strings.TrimSpace(a.Name), NoActionName)
}

// Observation is the model's verdict on whether the request is answered.
type Observation struct {
	IsAnswered bool   `json:"is_answered"`
	Answer     string `json:"answer,omitempty"`
}

// AgentStatus is the terminal state of a reasoning run.
type AgentStatus string

const (
	AgentStatusDone   AgentStatus = "DONE"
	AgentStatusFailed AgentStatus = "FAILED"
)

// AgentResponse is everything a caller of the reasoning loop receives.
// Answer holds either the final answer or the terminal failure message.
type AgentResponse struct {
	Answer     string      `json:"answer"`
	Status     AgentStatus `json:"status"`
	Iterations int         `json:"iterations"`
	Retries    int         `json:"retries"`
}

// FailedResponse builds the terminal response for an exhausted run.
func FailedResponse(reason string, iterations, retries int) *AgentResponse {
	return &AgentResponse{
		Answer:     fmt.Sprintf("I could not complete this request: %s.", reason),
		Status:     AgentStatusFailed,
		Iterations: iterations,
		Retries:    retries,
	}
}
