// Package tool implements the function / tool calling subsystem that lets the
// agent invoke structured capabilities (APIs, computations, side effects) with
// schema validated arguments, consistent error handling and metadata the model
// needs to decide when to call them.
package tool

import (
	"fmt"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered with an Executor to enable function calling, allowing
// the agent to perform actions beyond text generation such as API calls,
// calculations, database queries, or any other programmatic operations.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe; the Executor runs batches concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the model to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and model function calling.
	Parameters() map[string]any

	// Call executes the tool with structured arguments and a Context.
	// Arguments are parsed from JSON and validated against the tool's schema
	// before Call runs.
	Call(toolCtx *Context, args map[string]any) (any, error)
}

// EntityMutator is an optional interface for tools whose calls mutate a named
// external entity (a calendar event, a record, a document). MutatesEntity
// returns the name of the argument carrying the entity identifier, so the
// agent can reject batches where two concurrent calls would touch the same
// entity. An empty string means the tool mutates nothing.
type EntityMutator interface {
	MutatesEntity() string
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Error codes used by the built-in tool machinery.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnknownTool = "UNKNOWN_TOOL"
	CodePanic       = "PANIC"
)
