package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*InMemoryStore)(nil)

func appendN(t *testing.T, s Store, sessionKey, sessionID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		require.NoError(t, s.Append(ctx, Message{
			SessionKey: sessionKey,
			SessionID:  sessionID,
			Role:       role,
			Content:    string(rune('a' + i)),
			CreatedAt:  time.Now(),
		}))
	}
}

func TestInMemoryStore_RecentReturnsNewestNInOrder(t *testing.T) {
	s := NewInMemoryStore()
	appendN(t, s, "u", "sid", 8)

	msgs, err := s.Recent(context.Background(), "u", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 5)

	// Newest five, oldest first.
	assert.Equal(t, "d", msgs[0].Content)
	assert.Equal(t, "h", msgs[4].Content)
}

func TestInMemoryStore_RecentIsScopedToSessionKey(t *testing.T) {
	s := NewInMemoryStore()
	appendN(t, s, "alice", "sid-a", 3)
	appendN(t, s, "bob", "sid-b", 2)

	msgs, err := s.Recent(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	msgs, err = s.Recent(context.Background(), "carol", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestInMemoryStore_MarkSessionOldHidesMessages(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	appendN(t, s, "u", "sid-1", 4)
	appendN(t, s, "u", "sid-2", 2)

	n, err := s.MarkSessionOld(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	msgs, err := s.Recent(ctx, "u", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "only the live session remains visible")
	for _, m := range msgs {
		assert.Equal(t, "sid-2", m.SessionID)
	}

	// Marking again is a no-op.
	n, err = s.MarkSessionOld(ctx, "sid-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFormatRecent(t *testing.T) {
	assert.Equal(t, "No previous messages.", FormatRecent(nil))

	out := FormatRecent([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	assert.Equal(t, "user: hi\nassistant: hello", out)
}
