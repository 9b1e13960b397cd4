package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *Context {
	return NewContext(context.Background(), "user-1", "sid-1", "call-1", nil)
}

func TestFunctionTool_ValidatesAgainstSchema(t *testing.T) {
	sum := NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ *Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	result, err := sum.Call(newTestContext(), map[string]any{"a": 1.5, "b": 2.5})
	require.NoError(t, err)
	assert.Equal(t, 4.0, result)

	_, err = sum.Call(newTestContext(), map[string]any{"a": 1.5})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.Contains(t, toolErr.Message, "b")

	_, err = sum.Call(newTestContext(), map[string]any{"a": "one", "b": 2.0})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_FromStruct(t *testing.T) {
	type createEventArgs struct {
		Title    string `json:"title" description:"Event title"`
		Location string `json:"location,omitempty" description:"Optional location"`
	}

	create := NewFunctionToolFromStruct("create_event", "Create a calendar event", createEventArgs{},
		func(_ *Context, args map[string]any) (any, error) {
			return map[string]any{"success": true, "title": args["title"]}, nil
		})

	result, err := create.Call(newTestContext(), map[string]any{"title": "Standup"})
	require.NoError(t, err)
	assert.Equal(t, "Standup", result.(map[string]any)["title"])

	// Required field enforced by the derived schema.
	_, err = create.Call(newTestContext(), map[string]any{"location": "Room 4"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_WrapsExecutionErrors(t *testing.T) {
	failing := NewFunctionTool("failing", "always fails", nil,
		func(_ *Context, _ map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		})

	_, err := failing.Call(newTestContext(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "backend unavailable", toolErr.Message)
}

func TestFunctionTool_PreservesToolErrors(t *testing.T) {
	custom := &ToolError{Tool: "custom", Message: "not found", Code: "NOT_FOUND"}
	failing := NewFunctionTool("custom", "returns a typed error", nil,
		func(_ *Context, _ map[string]any) (any, error) {
			return nil, custom
		})

	_, err := failing.Call(newTestContext(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Same(t, custom, toolErr)
}

func TestFunctionTool_EntityArgument(t *testing.T) {
	plain := NewFunctionTool("get_events", "read only", nil,
		func(_ *Context, _ map[string]any) (any, error) { return nil, nil })
	assert.Empty(t, plain.MutatesEntity())

	mutating := NewFunctionTool("delete_event", "mutates", nil,
		func(_ *Context, _ map[string]any) (any, error) { return nil, nil },
	).WithEntityArgument("event_id")
	assert.Equal(t, "event_id", mutating.MutatesEntity())
}
