// Package pool manages a small set of rate-limited external API credentials
// shared by many concurrent conversational sessions, possibly across process
// boundaries. Every piece of mutable slot state (usage counters, locks,
// cooldowns, exhaustion flags) lives in a store.Store rather than process
// memory so that independently deployed instances can share one pool.
package pool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hupe1980/agentpool/store"
)

// Credential describes one external API key and its token capacity.
type Credential struct {
	Name     string
	APIKey   string
	Capacity int64 // cumulative token budget this key may spend
}

// CredentialSlot wraps one Credential with its shared bookkeeping state.
// All reads and writes go through the shared store; the struct itself holds
// only immutable identity.
type CredentialSlot struct {
	cred  Credential
	store store.Store
}

// NewCredentialSlot binds a credential to the shared store.
func NewCredentialSlot(cred Credential, st store.Store) *CredentialSlot {
	return &CredentialSlot{cred: cred, store: st}
}

// Name returns the credential's identifier.
func (s *CredentialSlot) Name() string { return s.cred.Name }

// APIKey returns the credential's secret.
func (s *CredentialSlot) APIKey() string { return s.cred.APIKey }

// Capacity returns the credential's cumulative token budget.
func (s *CredentialSlot) Capacity() int64 { return s.cred.Capacity }

func (s *CredentialSlot) key(suffix string) string {
	return fmt.Sprintf("cred:%s:%s", s.cred.Name, suffix)
}

// TokenUsage returns the cumulative number of tokens recorded for this
// credential across every session and process sharing the store.
func (s *CredentialSlot) TokenUsage(ctx context.Context) (int64, error) {
	v, ok, err := s.store.Get(ctx, s.key("usage"))
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// RecordUsage adds tokensUsed to the credential's cumulative counter. The
// effect is global: it is visible to every future CanAccept check in every
// process sharing the store.
func (s *CredentialSlot) RecordUsage(ctx context.Context, tokensUsed int64) error {
	_, err := s.store.IncrBy(ctx, s.key("usage"), tokensUsed)
	return err
}

// CanAccept reports whether the credential has room for tokensNeeded more
// tokens without oversubscribing its capacity.
func (s *CredentialSlot) CanAccept(ctx context.Context, tokensNeeded int64) (bool, error) {
	usage, err := s.TokenUsage(ctx)
	if err != nil {
		return false, err
	}
	return usage+tokensNeeded <= s.cred.Capacity, nil
}

// AcquireLock attempts to take the slot's exclusive lock for lockExpiry.
// The returned token must be presented to ReleaseLock. Acquisition can race
// with other borrowers (including other processes) and lose; a loss is
// reported as ok=false, not an error.
func (s *CredentialSlot) AcquireLock(ctx context.Context, lockExpiry time.Duration) (string, bool, error) {
	token, err := gonanoid.New()
	if err != nil {
		return "", false, err
	}
	ok, err := s.store.SetIfAbsent(ctx, s.key("lock"), token, lockExpiry)
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// IsLocked reports whether the slot is currently held by any borrower.
func (s *CredentialSlot) IsLocked(ctx context.Context) (bool, error) {
	_, ok, err := s.store.Get(ctx, s.key("lock"))
	return ok, err
}

// ReleaseLock frees the slot if token is the current holder. A mismatched or
// expired token returns ErrLockMismatch so double-returns and stale callers
// fail loudly instead of silently unlocking someone else's borrow.
func (s *CredentialSlot) ReleaseLock(ctx context.Context, token string) error {
	ok, err := s.store.CompareAndDelete(ctx, s.key("lock"), token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("release %q: %w", s.cred.Name, ErrLockMismatch)
	}
	return nil
}

// SetCooldown places the slot in cooldown for d; during cooldown the slot is
// ineligible for borrowing on every pool sharing the store.
func (s *CredentialSlot) SetCooldown(ctx context.Context, d time.Duration) error {
	until := time.Now().Add(d).UnixMilli()
	return s.store.Set(ctx, s.key("cooldown"), strconv.FormatInt(until, 10), d)
}

// InCooldown reports whether the slot is currently cooling down.
func (s *CredentialSlot) InCooldown(ctx context.Context) (bool, error) {
	v, ok, err := s.store.Get(ctx, s.key("cooldown"))
	if err != nil || !ok {
		return false, err
	}
	until, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, err
	}
	return time.Now().UnixMilli() < until, nil
}

// MarkExhausted flags the credential as spent, recording the reason.
func (s *CredentialSlot) MarkExhausted(ctx context.Context, reason string) error {
	return s.store.Set(ctx, s.key("exhausted"), reason, 0)
}

// MarkAvailable clears the exhausted flag.
func (s *CredentialSlot) MarkAvailable(ctx context.Context) error {
	return s.store.Delete(ctx, s.key("exhausted"))
}

// Exhausted reports whether the credential has been flagged as spent.
func (s *CredentialSlot) Exhausted(ctx context.Context) (bool, error) {
	_, ok, err := s.store.Get(ctx, s.key("exhausted"))
	return ok, err
}
