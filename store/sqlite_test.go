package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*SQLiteStore)(nil)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v1", 0))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	require.NoError(t, s.Set(ctx, "k", "v2", 0))
	v, _, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	require.NoError(t, s.Set(ctx, "lease", "held", 30*time.Millisecond))
	_, ok, err := s.Get(ctx, "lease")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok, err = s.Get(ctx, "lease")
	require.NoError(t, err)
	assert.False(t, ok, "expired rows behave as absent")

	// An expired row is claimable like a missing one.
	won, err := s.SetIfAbsent(ctx, "lease", "new-holder", 0)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestSQLiteStore_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	won, err := s.SetIfAbsent(ctx, "lock", "tok-1", 0)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.SetIfAbsent(ctx, "lock", "tok-2", 0)
	require.NoError(t, err)
	assert.False(t, won)

	v, _, err := s.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", v)
}

func TestSQLiteStore_CompareAndSwapAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	require.NoError(t, s.Set(ctx, "k", "old", 0))

	swapped, err := s.CompareAndSwap(ctx, "k", "wrong", "new", 0)
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = s.CompareAndSwap(ctx, "k", "old", "new", 0)
	require.NoError(t, err)
	assert.True(t, swapped)

	deleted, err := s.CompareAndDelete(ctx, "k", "old")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = s.CompareAndDelete(ctx, "k", "new")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestSQLiteStore_IncrBy(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	n, err := s.IncrBy(ctx, "usage", 600)
	require.NoError(t, err)
	assert.Equal(t, int64(600), n)

	n, err = s.IncrBy(ctx, "usage", 400)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)
}
