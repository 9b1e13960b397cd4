package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentpool/internal/util"
	"github.com/hupe1980/agentpool/state"
	"github.com/hupe1980/agentpool/transcript"
)

// DefaultPromptTemplate is the neutral system prompt scaffold populated each
// turn. Deployments override it with their own persona and instructions; the
// placeholders are the contract, not the wording.
const DefaultPromptTemplate = `You are a helpful assistant that works exclusively through tool calls.

Every iteration you MUST call update_working_state plus at least one other tool.
Finish a turn by calling send_interrogative_message (to ask the user something)
or send_declarative_message (to report a result). Never answer in plain text.

## Recent messages
{{.RecentMessages}}

## Working state
{{.StateJSON}}

## Last tool calls
{{.LastToolCalls}}

Current date: {{.CurrentDate}}`

// buildPrompt renders the system prompt from its template and dynamic fields.
func buildPrompt(template string, recent []transcript.Message, conv *state.Conversation, currentDate string) (string, error) {
	return util.RenderTemplate(template, map[string]any{
		"RecentMessages": transcript.FormatRecent(recent),
		"StateJSON":      conv.Snapshot(),
		"LastToolCalls":  formatLastToolCalls(conv.LastToolCalls),
		"CurrentDate":    currentDate,
	})
}

// formatLastToolCalls renders the previous iteration's batch for the prompt.
func formatLastToolCalls(records []state.ToolCallRecord) string {
	if len(records) == 0 {
		return "No previous tool calls"
	}

	parts := make([]string, 0, len(records))
	for _, rec := range records {
		result := "{}"
		if rec.Result != nil {
			if data, err := json.Marshal(rec.Result); err == nil {
				result = string(data)
			}
		}
		parts = append(parts, fmt.Sprintf("Tool: %s\nResult: %s\n", rec.Tool, result))
	}

	return strings.Join(parts, "\n")
}
