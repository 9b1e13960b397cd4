// Package transcript persists the conversation history the agent replays
// into its prompts. Messages are tagged with the logical session id they were
// produced under; when a session ends its messages are marked old and drop
// out of the recent window while remaining on record.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is a single transcript entry.
type Message struct {
	SessionKey string    `json:"session_key"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	Old        bool      `json:"old"`
}

// Store persists and retrieves transcript messages.
type Store interface {
	// Append records a message. CreatedAt defaults to now when zero.
	Append(ctx context.Context, msg Message) error

	// Recent returns the newest limit non-old messages for the session key,
	// in chronological order.
	Recent(ctx context.Context, sessionKey string, limit int) ([]Message, error)

	// MarkSessionOld flips the old flag on every message of the given
	// logical session and returns how many were updated.
	MarkSessionOld(ctx context.Context, sessionID string) (int, error)
}

// FormatRecent renders messages for prompt inclusion as "role: content"
// lines. An empty history renders as a fixed placeholder so the prompt shape
// stays stable.
func FormatRecent(messages []Message) string {
	if len(messages) == 0 {
		return "No previous messages."
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}

	return strings.Join(lines, "\n")
}
