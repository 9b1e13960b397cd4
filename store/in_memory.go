package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// InMemoryStore is a process-local Store implementation. It honours the same
// atomicity contract as shared implementations and is the default for tests
// and single-process deployments.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero = never
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]memoryEntry)}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// getLocked returns the live entry for key, pruning it if expired.
// Caller must hold mu.
func (s *InMemoryStore) getLocked(key string, now time.Time) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(now) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Get implements Store.
func (s *InMemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.getLocked(key, time.Now())
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements Store.
func (s *InMemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.entries[key] = memoryEntry{value: value, expiresAt: expiry(now, ttl)}
	return nil
}

// SetIfAbsent implements Store.
func (s *InMemoryStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if _, ok := s.getLocked(key, now); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: expiry(now, ttl)}
	return true, nil
}

// CompareAndSwap implements Store.
func (s *InMemoryStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	e, ok := s.getLocked(key, now)
	if !ok || e.value != old {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: new, expiresAt: expiry(now, ttl)}
	return true, nil
}

// CompareAndDelete implements Store.
func (s *InMemoryStore) CompareAndDelete(ctx context.Context, key, expect string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.getLocked(key, time.Now())
	if !ok || e.value != expect {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// IncrBy implements Store.
func (s *InMemoryStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var current int64
	if e, ok := s.getLocked(key, now); ok {
		n, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		current = n
	}
	current += delta
	// Counters keep whatever expiry they already had; a fresh counter never expires.
	e := s.entries[key]
	s.entries[key] = memoryEntry{value: strconv.FormatInt(current, 10), expiresAt: e.expiresAt}
	return current, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
