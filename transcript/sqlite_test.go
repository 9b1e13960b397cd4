package transcript

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*SQLiteStore)(nil)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transcript.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	appendN(t, s, "u", "sid", 3)

	msgs, err := s.Recent(ctx, "u", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].Content)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "sid", msgs[0].SessionID)
	assert.False(t, msgs[0].CreatedAt.IsZero())
}

func TestSQLiteStore_RecentWindowAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	appendN(t, s, "u", "sid", 8)

	msgs, err := s.Recent(ctx, "u", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, "d", msgs[0].Content)
	assert.Equal(t, "h", msgs[4].Content)

	// A negative limit means everything.
	msgs, err = s.Recent(ctx, "u", -1)
	require.NoError(t, err)
	assert.Len(t, msgs, 8)
}

func TestSQLiteStore_MarkSessionOld(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	appendN(t, s, "u", "sid-1", 4)
	appendN(t, s, "u", "sid-2", 2)

	n, err := s.MarkSessionOld(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	msgs, err := s.Recent(ctx, "u", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, "sid-2", m.SessionID)
	}

	n, err = s.MarkSessionOld(ctx, "sid-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
