package tool

import (
	"context"

	"github.com/hupe1980/agentpool/logging"
)

// Context provides a constrained, auditable surface for tool implementations
// invoked by the agent. It accumulates state and profile deltas without
// directly mutating the underlying conversation state until the agent applies
// them after the batch completes.
type Context struct {
	ctx          context.Context
	sessionKey   string
	sessionID    string
	callID       string
	logger       logging.Logger
	stateDelta   map[string]any
	profileDelta map[string]any
}

// NewContext constructs a tool context bound to a session and a unique
// function call ID.
func NewContext(ctx context.Context, sessionKey, sessionID, callID string, logger logging.Logger) *Context {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Context{
		ctx:        ctx,
		sessionKey: sessionKey,
		sessionID:  sessionID,
		callID:     callID,
		logger:     logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *Context) Context() context.Context { return tc.ctx }

// SessionKey returns the stable conversation identifier (e.g. the user's chat key).
func (tc *Context) SessionKey() string { return tc.sessionKey }

// SessionID returns the identifier of the current logical session.
func (tc *Context) SessionID() string { return tc.sessionID }

// CallID returns the function call ID associated with the tool invocation.
func (tc *Context) CallID() string { return tc.callID }

// Logger returns the logger associated with the tool invocation.
func (tc *Context) Logger() logging.Logger { return tc.logger }

// SetState records a working-state mutation in the local delta. The agent
// merges accumulated deltas into the conversation state after the batch.
func (tc *Context) SetState(k string, v any) {
	if tc.stateDelta == nil {
		tc.stateDelta = map[string]any{}
	}
	tc.stateDelta[k] = v
}

// PatchState records a whole patch of working-state mutations at once.
func (tc *Context) PatchState(patch map[string]any) {
	for k, v := range patch {
		tc.SetState(k, v)
	}
}

// StateDelta returns the accumulated working-state mutations. May be nil.
func (tc *Context) StateDelta() map[string]any { return tc.stateDelta }

// SetProfile records a user-profile mutation in the local delta. Profile
// deltas survive session resets, unlike working state.
func (tc *Context) SetProfile(k string, v any) {
	if tc.profileDelta == nil {
		tc.profileDelta = map[string]any{}
	}
	tc.profileDelta[k] = v
}

// ProfileDelta returns the accumulated user-profile mutations. May be nil.
func (tc *Context) ProfileDelta() map[string]any { return tc.profileDelta }
