package agent

import (
	"github.com/hupe1980/agentpool/tool"
)

// Protocol tool names. The loop keys its validation and termination logic on
// these, so they are fixed regardless of what domain tools are registered.
const (
	ToolUpdateWorkingState = "update_working_state"
	ToolUpdateUserProfile  = "update_user_profile"
	ToolSendInterrogative  = "send_interrogative_message"
	ToolSendDeclarative    = "send_declarative_message"
)

// MessageType values carried by terminal message tool results.
const (
	MessageTypeInterrogative = "interrogative"
	MessageTypeDeclarative   = "declarative"
)

func newUpdateWorkingStateTool() tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"state_dict": map[string]any{
				"type":        "object",
				"description": "Updated working state: intent and reasoning are required, any other fields are kept as well.",
			},
		},
		"required": []string{"state_dict"},
	}

	return tool.NewFunctionTool(
		ToolUpdateWorkingState,
		"Update your internal working state based on conversation history and tool results. Call this first in every iteration.",
		params,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			stateDict, ok := args["state_dict"].(map[string]any)
			if !ok {
				return map[string]any{"success": false, "error": "state_dict must be an object"}, nil
			}
			if _, ok := stateDict["intent"]; !ok {
				return map[string]any{"success": false, "error": "Missing required field: intent"}, nil
			}
			if _, ok := stateDict["reasoning"]; !ok {
				return map[string]any{"success": false, "error": "Missing required field: reasoning"}, nil
			}

			toolCtx.PatchState(stateDict)

			return map[string]any{
				"success": true,
				"message": "State updated and persisted successfully",
			}, nil
		},
	)
}

func newUpdateUserProfileTool() tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"profile_updates": map[string]any{
				"type":        "object",
				"description": "Profile fields to merge into the persistent user profile.",
			},
		},
		"required": []string{"profile_updates"},
	}

	return tool.NewFunctionTool(
		ToolUpdateUserProfile,
		"Update the persistent user profile with learnings that should be remembered across conversations.",
		params,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			updates, ok := args["profile_updates"].(map[string]any)
			if !ok {
				return map[string]any{"success": false, "error": "profile_updates must be an object"}, nil
			}

			for k, v := range updates {
				toolCtx.SetProfile(k, v)
			}

			return map[string]any{
				"success": true,
				"message": "Profile updated successfully",
			}, nil
		},
	)
}

func newSendMessageTool(name, description, messageType string) tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The message to send to the user.",
			},
			"partial_state_update": map[string]any{
				"type":        "object",
				"description": "Current state insights to persist alongside the message (optional).",
			},
		},
		"required": []string{"content"},
	}

	return tool.NewFunctionTool(
		name,
		description,
		params,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			content, _ := args["content"].(string)
			if partial, ok := args["partial_state_update"].(map[string]any); ok {
				toolCtx.PatchState(partial)
			}

			return map[string]any{
				"success":        true,
				"message_type":   messageType,
				"content":        content,
				"stop_iteration": true,
			}, nil
		},
	)
}

// protocolTools returns the four built-in tools every agent carries.
func protocolTools() []tool.Tool {
	return []tool.Tool{
		newUpdateWorkingStateTool(),
		newUpdateUserProfileTool(),
		newSendMessageTool(
			ToolSendInterrogative,
			"Ask the user a clarifying question. Use this when you need a single, small piece of information to make progress. Ends the turn.",
			MessageTypeInterrogative,
		),
		newSendMessageTool(
			ToolSendDeclarative,
			"Send a statement, confirmation or summary to the user. Use this when the task is done. Ends the turn and the conversation segment.",
			MessageTypeDeclarative,
		),
	}
}
