package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentpool/logging"
	"github.com/hupe1980/agentpool/model"
)

// Result captures the outcome of a single tool call within a batch. Exactly
// one of Output and Err is meaningful.
type Result struct {
	CallID       string
	Tool         string
	Output       any
	Err          error
	StateDelta   map[string]any
	ProfileDelta map[string]any
	Duration     time.Duration
}

// Payload renders the result as the JSON-serializable object sent back to the
// model. Failures are structured rather than opaque strings so the model can
// reason about them.
func (r Result) Payload() map[string]any {
	if r.Err != nil {
		toolErr, ok := r.Err.(*ToolError)
		if !ok {
			toolErr = &ToolError{Tool: r.Tool, Message: r.Err.Error(), Code: CodeExecution}
		}
		return map[string]any{"error": toolErr}
	}
	return map[string]any{"result": r.Output}
}

// Executor dispatches batches of model-requested tool calls to registered
// tools, running the batch concurrently and collecting structured results in
// call order. A failed call never aborts its siblings.
type Executor struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger logging.Logger
}

// NewExecutor creates an empty Executor. A nil logger disables logging.
func NewExecutor(logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Executor{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool, rejecting duplicate names.
func (e *Executor) Register(t Tool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	e.tools[t.Name()] = t

	return nil
}

// Lookup returns the registered tool with the given name.
func (e *Executor) Lookup(name string) (Tool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.tools[name]

	return t, ok
}

// Names returns the registered tool names in sorted order.
func (e *Executor) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Definitions returns the declarations advertised to the model.
func (e *Executor) Definitions() []model.ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := e.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	return defs
}

// EntityCollisions inspects a batch and returns the entity ids that more than
// one mutating call would touch. Calls to unknown tools or with unparseable
// arguments are skipped here; execution reports those failures properly.
func (e *Executor) EntityCollisions(calls []model.ToolCall) []string {
	seen := make(map[string]int)

	for _, call := range calls {
		t, ok := e.Lookup(call.Name)
		if !ok {
			continue
		}
		mutator, ok := t.(EntityMutator)
		if !ok {
			continue
		}
		arg := mutator.MutatesEntity()
		if arg == "" {
			continue
		}
		args, err := call.ArgsMap()
		if err != nil {
			continue
		}
		id, ok := args[arg]
		if !ok || id == nil {
			continue
		}
		seen[fmt.Sprint(id)]++
	}

	var collisions []string
	for id, count := range seen {
		if count > 1 {
			collisions = append(collisions, id)
		}
	}
	sort.Strings(collisions)

	return collisions
}

// ExecuteBatch runs every call in the batch concurrently and returns results
// in the same order as the input. Unknown tools, argument parse failures and
// panics all surface as *ToolError results for their own call only.
func (e *Executor) ExecuteBatch(ctx context.Context, sessionKey, sessionID string, calls []model.ToolCall) []Result {
	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.ToolCall) {
			defer wg.Done()
			results[i] = e.executeOne(ctx, sessionKey, sessionID, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (e *Executor) executeOne(ctx context.Context, sessionKey, sessionID string, call model.ToolCall) (res Result) {
	start := time.Now()
	res = Result{CallID: call.ID, Tool: call.Name}

	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			res.Err = &ToolError{
				Tool:    call.Name,
				Message: fmt.Sprintf("tool panicked: %v", r),
				Code:    CodePanic,
			}
		}
		if toolLogger, ok := e.logger.(*logging.AgentPoolLogger); ok {
			toolLogger.LogToolCall(call.Name, res.Duration, res.Err == nil, res.Err)
		}
	}()

	t, ok := e.Lookup(call.Name)
	if !ok {
		res.Err = &ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("no tool registered under %q", call.Name),
			Code:    CodeUnknownTool,
		}
		return res
	}

	args, err := call.ArgsMap()
	if err != nil {
		res.Err = &ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("malformed arguments: %v", err),
			Code:    CodeValidation,
		}
		return res
	}

	toolCtx := NewContext(ctx, sessionKey, sessionID, call.ID, e.logger)
	output, err := t.Call(toolCtx, args)
	if err != nil {
		res.Err = err
		return res
	}

	res.Output = output
	res.StateDelta = toolCtx.StateDelta()
	res.ProfileDelta = toolCtx.ProfileDelta()

	return res
}
