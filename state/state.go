// Package state maintains the per-conversation working state the agent and
// its protocol tools read and mutate between model iterations. State is split
// into a persistent user profile, which survives session resets, and transient
// working fields which do not.
package state

import (
	"encoding/json"

	"github.com/hupe1980/agentpool/internal/util"
)

// ToolCallRecord captures one executed tool call and its result. The records
// of the latest batch feed the next iteration's prompt and the cross-turn
// question/answer pairing.
type ToolCallRecord struct {
	Tool   string         `json:"tool_name"`
	Args   map[string]any `json:"args,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// Clone returns a deep copy of the record.
func (r ToolCallRecord) Clone() ToolCallRecord {
	return ToolCallRecord{
		Tool:   r.Tool,
		Args:   cloneMap(r.Args),
		Result: cloneMap(r.Result),
	}
}

// Conversation holds the working state of a single conversation. Known fields
// are typed; anything else the model stashes lands in Extensions.
type Conversation struct {
	SessionID     string           `json:"session_id"`
	Profile       map[string]any   `json:"user_profile,omitempty"`
	Intent        string           `json:"intent,omitempty"`
	Context       map[string]any   `json:"context,omitempty"`
	Planning      map[string]any   `json:"planning,omitempty"`
	Commitments   []any            `json:"commitments,omitempty"`
	Confidence    float64          `json:"confidence,omitempty"`
	Reasoning     string           `json:"reasoning,omitempty"`
	LastToolCalls []ToolCallRecord `json:"last_tool_calls,omitempty"`
	Extensions    map[string]any   `json:"extensions,omitempty"`
}

// Clone returns a deep copy. The original is never aliased, so callers can
// hand clones across goroutines safely.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		SessionID:  c.SessionID,
		Intent:     c.Intent,
		Confidence: c.Confidence,
		Reasoning:  c.Reasoning,
	}
	clone.Profile = cloneMap(c.Profile)
	clone.Context = cloneMap(c.Context)
	clone.Planning = cloneMap(c.Planning)
	clone.Extensions = cloneMap(c.Extensions)
	if c.Commitments != nil {
		clone.Commitments = cloneValue(c.Commitments).([]any)
	}
	if c.LastToolCalls != nil {
		clone.LastToolCalls = make([]ToolCallRecord, len(c.LastToolCalls))
		for i, rec := range c.LastToolCalls {
			clone.LastToolCalls[i] = rec.Clone()
		}
	}
	return clone
}

// Apply merges a patch into the conversation. Known keys route to their typed
// fields; map-valued fields merge recursively while arrays and scalars are
// replaced wholesale. Unknown keys land in Extensions under the same rules.
// Applying the same non-array patch twice yields the same state.
func (c *Conversation) Apply(patch map[string]any) {
	for key, value := range patch {
		switch key {
		case "session_id", "last_tool_calls":
			// Session identity and the batch record are owned by the
			// Manager and the agent loop, never patchable.
		case "intent":
			if s, ok := value.(string); ok {
				c.Intent = s
			}
		case "reasoning":
			if s, ok := value.(string); ok {
				c.Reasoning = s
			}
		case "confidence":
			if f, ok := toFloat(value); ok {
				c.Confidence = f
			}
		case "user_profile", "profile":
			if m, ok := value.(map[string]any); ok {
				c.Profile = util.DeepMerge(c.Profile, m)
			}
		case "context":
			if m, ok := value.(map[string]any); ok {
				c.Context = util.DeepMerge(c.Context, m)
			}
		case "planning":
			if m, ok := value.(map[string]any); ok {
				c.Planning = util.DeepMerge(c.Planning, m)
			}
		case "commitments":
			if a, ok := value.([]any); ok {
				c.Commitments = cloneValue(a).([]any)
			}
		default:
			if c.Extensions == nil {
				c.Extensions = map[string]any{}
			}
			if srcMap, ok := value.(map[string]any); ok {
				if dstMap, ok := c.Extensions[key].(map[string]any); ok {
					c.Extensions[key] = util.DeepMerge(dstMap, srcMap)
					continue
				}
			}
			c.Extensions[key] = value
		}
	}
}

// MergeProfile merges learnings into the persistent user profile.
func (c *Conversation) MergeProfile(patch map[string]any) {
	c.Profile = util.DeepMerge(c.Profile, patch)
}

// Snapshot renders the conversation as indented JSON for prompt inclusion.
// LastToolCalls is omitted because the prompt carries the formatted batch
// separately and duplicating it bloats the context.
func (c *Conversation) Snapshot() string {
	trimmed := c.Clone()
	trimmed.LastToolCalls = nil

	data, err := json.MarshalIndent(trimmed, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
