package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GetCreatesFreshState(t *testing.T) {
	m := NewManager()

	conv := m.Get("user-1")
	assert.NotEmpty(t, conv.SessionID)
	assert.Empty(t, conv.Intent)

	// Same key returns the same session, different keys never share one.
	assert.Equal(t, conv.SessionID, m.Get("user-1").SessionID)
	assert.NotEqual(t, conv.SessionID, m.Get("user-2").SessionID)
}

func TestManager_UpdateRoutesKnownAndUnknownKeys(t *testing.T) {
	m := NewManager()

	conv := m.Update("u", map[string]any{
		"intent":     "schedule_meeting",
		"reasoning":  "user asked for a slot tomorrow",
		"confidence": 0.8,
		"context":    map[string]any{"time_horizon": "tomorrow"},
		"mood_trace": []any{"calm"},
	})

	assert.Equal(t, "schedule_meeting", conv.Intent)
	assert.Equal(t, "user asked for a slot tomorrow", conv.Reasoning)
	assert.InDelta(t, 0.8, conv.Confidence, 0.001)
	assert.Equal(t, "tomorrow", conv.Context["time_horizon"])
	assert.Equal(t, []any{"calm"}, conv.Extensions["mood_trace"])
}

func TestManager_DeepMergeRecursesMaps(t *testing.T) {
	m := NewManager()

	m.Update("u", map[string]any{
		"planning": map[string]any{
			"missing_info":   "date",
			"next_microstep": "ask for date",
		},
	})
	conv := m.Update("u", map[string]any{
		"planning": map[string]any{"missing_info": "none"},
	})

	assert.Equal(t, "none", conv.Planning["missing_info"])
	assert.Equal(t, "ask for date", conv.Planning["next_microstep"], "untouched sibling keys survive the merge")
}

func TestManager_DeepMergeIsIdempotent(t *testing.T) {
	m := NewManager()
	patch := map[string]any{
		"intent": "plan_week",
		"context": map[string]any{
			"constraints": map[string]any{"no_mornings": true},
		},
		"confidence": 0.5,
	}

	once := m.Update("u", patch)
	twice := m.Update("u", patch)

	assert.Equal(t, once.Intent, twice.Intent)
	assert.Equal(t, once.Context, twice.Context)
	assert.Equal(t, once.Confidence, twice.Confidence)
}

func TestManager_ArraysReplaceWholesale(t *testing.T) {
	m := NewManager()

	m.Update("u", map[string]any{"commitments": []any{"a", "b"}})
	conv := m.Update("u", map[string]any{"commitments": []any{"c"}})

	assert.Equal(t, []any{"c"}, conv.Commitments, "arrays are replaced, never concatenated")
}

func TestManager_ResetTransient(t *testing.T) {
	m := NewManager()

	m.Update("u", map[string]any{
		"intent":       "schedule_meeting",
		"reasoning":    "working on it",
		"user_profile": map[string]any{"preferences": map[string]any{"style": "short"}},
	})
	m.SetLastToolCalls("u", []ToolCallRecord{{Tool: "get_events"}})

	before := m.Get("u")
	newID := m.ResetTransient("u")
	after := m.Get("u")

	assert.NotEqual(t, before.SessionID, newID)
	assert.Equal(t, newID, after.SessionID)
	assert.Equal(t, before.Profile, after.Profile, "profile must survive verbatim")
	assert.Empty(t, after.Intent)
	assert.Empty(t, after.Reasoning)
	assert.Empty(t, after.LastToolCalls)

	// Repeated resets always issue fresh ids.
	assert.NotEqual(t, newID, m.ResetTransient("u"))
}

func TestManager_CopiesDoNotAliasInternalState(t *testing.T) {
	m := NewManager()

	m.Update("u", map[string]any{"context": map[string]any{"k": "v"}})

	conv := m.Get("u")
	conv.Context["k"] = "mutated"
	conv.Intent = "mutated"

	fresh := m.Get("u")
	assert.Equal(t, "v", fresh.Context["k"])
	assert.Empty(t, fresh.Intent)
}

func TestManager_CopiesAreDeepBelowTheFirstLevel(t *testing.T) {
	m := NewManager()

	m.Update("u", map[string]any{
		"context": map[string]any{
			"inner": map[string]any{"k": "v"},
			"list":  []any{map[string]any{"id": "a"}},
		},
		"commitments": []any{map[string]any{"task": "book room"}},
	})

	conv := m.Get("u")
	conv.Context["inner"].(map[string]any)["k"] = "mutated"
	conv.Context["list"].([]any)[0].(map[string]any)["id"] = "mutated"
	conv.Commitments[0].(map[string]any)["task"] = "mutated"

	fresh := m.Get("u")
	assert.Equal(t, "v", fresh.Context["inner"].(map[string]any)["k"])
	assert.Equal(t, "a", fresh.Context["list"].([]any)[0].(map[string]any)["id"])
	assert.Equal(t, "book room", fresh.Commitments[0].(map[string]any)["task"])
}

func TestManager_LastToolCallRecordsAreDeepCopies(t *testing.T) {
	m := NewManager()

	m.SetLastToolCalls("u", []ToolCallRecord{{
		Tool:   "get_events",
		Result: map[string]any{"events": []any{map[string]any{"id": "ev-1"}}},
	}})

	records := m.Get("u").LastToolCalls
	records[0].Result["events"].([]any)[0].(map[string]any)["id"] = "mutated"

	fresh := m.Get("u").LastToolCalls
	assert.Equal(t, "ev-1", fresh[0].Result["events"].([]any)[0].(map[string]any)["id"])
}

func TestManager_AmendLastToolResult(t *testing.T) {
	m := NewManager()

	assert.False(t, m.AmendLastToolResult("u", "user_response", "yes"), "nothing to amend yet")

	m.SetLastToolCalls("u", []ToolCallRecord{
		{Tool: "update_working_state", Result: map[string]any{"success": true}},
		{Tool: "send_interrogative_message", Result: map[string]any{"content": "Which day?"}},
	})
	require.True(t, m.AmendLastToolResult("u", "user_response", "Tuesday"))

	records := m.Get("u").LastToolCalls
	require.Len(t, records, 2)
	assert.Equal(t, "Tuesday", records[1].Result["user_response"])
	assert.NotContains(t, records[0].Result, "user_response")
}

func TestConversation_SnapshotOmitsLastToolCalls(t *testing.T) {
	conv := &Conversation{
		SessionID:     "sid",
		Intent:        "check_schedule",
		LastToolCalls: []ToolCallRecord{{Tool: "get_events"}},
	}

	snapshot := conv.Snapshot()
	assert.Contains(t, snapshot, "check_schedule")
	assert.NotContains(t, snapshot, "last_tool_calls")
	assert.Len(t, conv.LastToolCalls, 1, "snapshot must not mutate the conversation")
}
