// Package model defines the provider-neutral language model interface used by
// the agent loop, plus adapters under model/openai and model/anthropic. The
// interface is deliberately non-streaming: an invocation either runs to
// completion or returns an error, matching the loop's barrier semantics.
package model

import (
	"context"
	"encoding/json"
)

// ToolCall is a function call request surfaced by a model provider, unified
// across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON object of arguments
}

// ArgsMap decodes the raw argument payload into a generic map. A nil or empty
// payload yields an empty map rather than an error.
func (tc ToolCall) ArgsMap() (map[string]any, error) {
	if len(tc.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(tc.Arguments, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Message is a single entry of the conversation sent to the model.
//
// Role is one of "system", "user", "assistant" or "tool". Assistant messages
// may carry ToolCalls; tool messages answer exactly one call identified by
// ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage constructs a system role message.
func SystemMessage(text string) Message { return Message{Role: "system", Text: text} }

// UserMessage constructs a user role message.
func UserMessage(text string) Message { return Message{Role: "user", Text: text} }

// AssistantMessage constructs an assistant role message.
func AssistantMessage(text string) Message { return Message{Role: "assistant", Text: text} }

// ToolMessage constructs a tool result message answering the given call id.
func ToolMessage(callID, text string) Message {
	return Message{Role: "tool", ToolCallID: callID, Text: text}
}

// Request captures the normalized model input produced by the agent loop.
type Request struct {
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed output of a model invocation.
type Response struct {
	Text         string      `json:"text"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface the agent loop requires of a provider.
type Model interface {
	// Invoke runs one completion with the bound tool manifest and returns
	// the final response. There is no mid-flight cancellation beyond ctx.
	Invoke(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}
