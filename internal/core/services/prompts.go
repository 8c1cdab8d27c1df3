package services

import (
	"fmt"
	"strings"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

const (
	actionShape      = `{"action": "<action name or no_action>", "action_prompt": "<what to do, in plain words>"}`
	observationShape = `{"is_answered": <true|false>, "answer": "<final answer, only when is_answered is true>"}`
)

const planningRules = `You work in rounds. Each round you write ONE thought as a JSON object:
{"immediate_response": {"content": "<one short sentence telling the user what you are doing>"},
 "thought": "<your reasoning>",
 "action": "<EXACT action name from the list, or no_action>",
 "action_prompt": "<what the action should do, in plain words>"}

If you already know every parameter you may send them directly instead of action_prompt:
{"thought": "...", "action": "<name>", "parameters": {...}}

RULES:
1. Use the EXACT action name from the list. Do not invent names.
2. Use no_action when the information gathered so far is enough to answer.
3. A FAILURE action result is information: read it and correct yourself.
4. Output the JSON object only.`

// buildPlanningSystem is the fixed framing step of every chain.
func buildPlanningSystem(registry *domain.Registry, history string) string {
	var sb strings.Builder
	sb.WriteString("You are a task agent for an operations team. You answer requests by reasoning step by step and calling actions.\n\n")
	sb.WriteString(registry.FormatForPrompt())
	sb.WriteString("\n")
	sb.WriteString(planningRules)
	if history != "" {
		sb.WriteString("\n\nPrevious conversation:\n")
		sb.WriteString(history)
		sb.WriteString("\n---")
	}
	return sb.String()
}

func buildPlanningPrompt(chain *domain.Chain) string {
	return chain.Format() + "\n\nWrite the next thought as a JSON object."
}

const observationSystem = `You review the reasoning so far and decide whether the user's request is fully answered.
Reply with a JSON object only:
` + observationShape + `
Set is_answered to false when more actions are needed. When true, answer must be the complete reply for the user.`

func buildObservationPrompt(chain *domain.Chain) string {
	return chain.Format() + "\n\nIs the request answered? Reply with the JSON object."
}

const parameterSystem = `You convert an instruction into the parameters of a function call.
Reply with a single JSON object that matches the parameter schema. Output JSON only, no prose.`

func buildParameterPrompt(fn *domain.RegisteredFunction, schema []byte, intent string) string {
	return fmt.Sprintf("Function: %s\nDescription: %s\nParameter schema:\n%s\n\nInstruction: %s\n\nParameters JSON:",
		fn.Signature(), fn.Description, schema, intent)
}

const repairSystem = `You repair malformed model output. Coerce the text into exactly the requested JSON shape.
Keep the original meaning. Output JSON only, with no explanation and no code fence.`

func buildRepairPrompt(malformed, shape string) string {
	return fmt.Sprintf("Target shape:\n%s\n\nText to repair:\n%s", shape, malformed)
}
