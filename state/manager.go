package state

import (
	"sync"

	"github.com/google/uuid"
)

// Manager holds the conversation state for every active session key. All
// accessors return deep copies, so callers never observe concurrent mutation
// and two sessions never share nested maps.
type Manager struct {
	mu     sync.RWMutex
	states map[string]*Conversation
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{states: make(map[string]*Conversation)}
}

// Get returns a copy of the conversation for the given session key, creating
// a fresh one with a new session id on first use.
func (m *Manager) Get(sessionKey string) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getLocked(sessionKey).Clone()
}

func (m *Manager) getLocked(sessionKey string) *Conversation {
	conv, ok := m.states[sessionKey]
	if !ok {
		conv = &Conversation{SessionID: uuid.New().String()}
		m.states[sessionKey] = conv
	}
	return conv
}

// Update deep-merges a patch into the conversation and returns the resulting
// state as a copy.
func (m *Manager) Update(sessionKey string, patch map[string]any) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.getLocked(sessionKey)
	conv.Apply(patch)

	return conv.Clone()
}

// UpdateProfile merges learnings into the persistent user profile only.
func (m *Manager) UpdateProfile(sessionKey string, patch map[string]any) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.getLocked(sessionKey)
	conv.MergeProfile(patch)

	return conv.Clone()
}

// SetLastToolCalls records the batch executed in the latest iteration.
func (m *Manager) SetLastToolCalls(sessionKey string, records []ToolCallRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.getLocked(sessionKey)
	conv.LastToolCalls = make([]ToolCallRecord, len(records))
	for i, rec := range records {
		conv.LastToolCalls[i] = rec.Clone()
	}
}

// AmendLastToolResult sets a key on the result of the most recent tool call
// record. It reports whether a record existed to amend. Used to pair a user's
// answer with the question the agent asked last turn.
func (m *Manager) AmendLastToolResult(sessionKey, key string, value any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.getLocked(sessionKey)
	if len(conv.LastToolCalls) == 0 {
		return false
	}
	last := &conv.LastToolCalls[len(conv.LastToolCalls)-1]
	if last.Result == nil {
		last.Result = map[string]any{}
	}
	last.Result[key] = value

	return true
}

// ResetTransient ends the current logical session: the user profile is kept
// verbatim, every transient field is dropped and a new session id is issued.
// It returns the new session id, which always differs from the previous one.
func (m *Manager) ResetTransient(sessionKey string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.getLocked(sessionKey)
	next := &Conversation{
		SessionID: uuid.New().String(),
		Profile:   cloneMap(prev.Profile),
	}
	m.states[sessionKey] = next

	return next.SessionID
}
