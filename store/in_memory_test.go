package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ Store = (*InMemoryStore)(nil)

func TestInMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired key must read as absent")

	// An expired key counts as absent for SetIfAbsent too.
	okSet, err := s.SetIfAbsent(ctx, "k", "v2", 0)
	require.NoError(t, err)
	assert.True(t, okSet)
}

func TestInMemoryStore_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	ok, err := s.SetIfAbsent(ctx, "lock", "tokenA", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetIfAbsent(ctx, "lock", "tokenB", 0)
	require.NoError(t, err)
	assert.False(t, ok, "second writer must lose")

	v, _, err := s.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, "tokenA", v)
}

func TestInMemoryStore_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Set(ctx, "lock", "tokenA", 0))

	ok, err := s.CompareAndDelete(ctx, "lock", "tokenB")
	require.NoError(t, err)
	assert.False(t, ok, "mismatched token must not delete")

	ok, err = s.CompareAndDelete(ctx, "lock", "tokenA")
	require.NoError(t, err)
	assert.True(t, ok)

	_, exists, err := s.Get(ctx, "lock")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInMemoryStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Set(ctx, "k", "old", 0))

	ok, err := s.CompareAndSwap(ctx, "k", "wrong", "new", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, "k", "old", "new", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestInMemoryStore_IncrBy(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	n, err := s.IncrBy(ctx, "usage", 600)
	require.NoError(t, err)
	assert.Equal(t, int64(600), n)

	n, err = s.IncrBy(ctx, "usage", 400)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)
}
