package tool

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hupe1980/agentpool/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a JSON Schema parameter specification
//   - Validates model supplied arguments against that schema before execution
//   - Invokes the wrapped function with a *Context giving access to session
//     identifiers, logging and state delta accumulation
//   - Normalizes error handling so callers receive *ToolError with consistent
//     codes: CodeValidation for schema mismatches, CodeExecution for plain
//     errors from the wrapped function; custom codes are preserved when the
//     function returns *ToolError directly
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	// Name of the argument carrying a mutated entity id, empty if the tool
	// is read-only. See EntityMutator.
	entityArg string
	fn        func(toolCtx *Context, args map[string]any) (any, error)

	compileOnce sync.Once
	schema      *gojsonschema.Schema
	compileErr  error
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection. It is a convenience for simple argument containers.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers", SumArgs{}, fn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// WithEntityArgument marks the tool as mutating the entity identified by the
// named argument, enabling same-entity collision checks on concurrent batches.
// It returns the tool for chaining.
func (t *FunctionTool) WithEntityArgument(arg string) *FunctionTool {
	t.entityArg = arg
	return t
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// MutatesEntity implements EntityMutator.
func (t *FunctionTool) MutatesEntity() string { return t.entityArg }

func (t *FunctionTool) compiledSchema() (*gojsonschema.Schema, error) {
	t.compileOnce.Do(func() {
		if t.parameters == nil {
			return
		}
		loader := gojsonschema.NewGoLoader(t.parameters)
		t.schema, t.compileErr = gojsonschema.NewSchema(loader)
	})
	return t.schema, t.compileErr
}

func (t *FunctionTool) validate(args map[string]any) error {
	schema, err := t.compiledSchema()
	if err != nil {
		return fmt.Errorf("invalid parameter schema: %w", err)
	}
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Call validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
func (t *FunctionTool) Call(toolCtx *Context, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "call_id", toolCtx.CallID())

	if err := t.validate(args); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err.Error(),
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok { // Already a ToolError -> just log and forward
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
