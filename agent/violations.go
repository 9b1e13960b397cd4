package agent

import (
	"fmt"
	"strings"
)

// violationKind classifies protocol violations found in a model response.
// The kinds drive the bounded corrective-retry loop; only violationEntityRace
// may abort a turn, because executing a colliding batch risks a lost update
// on shared state.
type violationKind int

const (
	violationNone violationKind = iota
	violationNoCalls
	violationTooFewCalls
	violationNoStateUpdate
	violationEntityRace
)

func (v violationKind) String() string {
	switch v {
	case violationNone:
		return "none"
	case violationNoCalls:
		return "no_tool_calls"
	case violationTooFewCalls:
		return "too_few_tool_calls"
	case violationNoStateUpdate:
		return "no_state_update"
	case violationEntityRace:
		return "entity_race"
	default:
		return "unknown"
	}
}

// Corrective instructions injected as system messages on retry. Kept as data
// so deployments can tune the wording without touching the loop.
var correctiveTexts = map[violationKind]string{
	violationNoCalls: "ERROR: You must call tools. You cannot respond with plain text. " +
		"Call update_working_state first, then at least one other tool.",
	violationTooFewCalls: "ERROR: You must call at least 2 tools per iteration: " +
		"1) update_working_state and " +
		"2) At least one action tool (query, action, or message tool). ",
	violationEntityRace: "ERROR: Your tool calls target the same entity more than once (%s). " +
		"Concurrent mutations of one entity conflict with each other. " +
		"Issue at most one mutating call per entity, or split the work across iterations.",
}

// Extra hint appended when the single call in an undersized batch was the
// state update, the most common failure mode.
const planningOnlyHint = "CRITICAL HINT: You called update_working_state but forgot the action! " +
	"If your state plans a next step, you must ALSO execute it in the SAME iteration. " +
	"State is PLANNING what you'll do. Actions are EXECUTING the plan. Both required together!"

func correctiveText(kind violationKind, entityIDs []string) string {
	text := correctiveTexts[kind]
	if kind == violationEntityRace {
		return fmt.Sprintf(text, strings.Join(entityIDs, ", "))
	}
	return text
}

// User-visible fallback messages. Deliberately generic and apologetic; no
// internal error detail ever leaks into them.
const (
	fallbackRephrase      = "I apologize, I'm having trouble processing your request right now. Could you please rephrase?"
	fallbackHighDemand    = "I'm experiencing high demand right now. Please try again in a moment."
	fallbackModelError    = "I apologize, but I encountered an error. Please try again."
	fallbackMaxIterations = "I apologize, but I'm having trouble processing your request. Could you please rephrase?"
	fallbackConflict      = "I apologize, I ran into a conflict while processing your request and stopped to keep your data safe. Could you please try again?"
)
