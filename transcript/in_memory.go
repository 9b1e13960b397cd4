package transcript

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps the transcript in process memory. Suitable for tests
// and single-process deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages []Message
}

// NewInMemoryStore creates an empty in-memory transcript store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append records a message.
func (s *InMemoryStore) Append(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, msg)

	return nil
}

// Recent returns the newest limit non-old messages for the session key in
// chronological order.
func (s *InMemoryStore) Recent(_ context.Context, sessionKey string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Message
	for _, msg := range s.messages {
		if msg.SessionKey == sessionKey && !msg.Old {
			matched = append(matched, msg)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	out := make([]Message, len(matched))
	copy(out, matched)

	return out, nil
}

// MarkSessionOld flips the old flag for every message of the session id.
func (s *InMemoryStore) MarkSessionOld(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for i := range s.messages {
		if s.messages[i].SessionID == sessionID && !s.messages[i].Old {
			s.messages[i].Old = true
			count++
		}
	}

	return count, nil
}
