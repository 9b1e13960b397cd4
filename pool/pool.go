package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentpool/logging"
	"github.com/hupe1980/agentpool/model"
	"github.com/hupe1980/agentpool/store"
)

// ModelFactory builds the reusable client handle for one credential.
// Called once per credential at pool construction and on Refresh.
type ModelFactory func(cred Credential) (model.Model, error)

// Options configures pool construction.
type Options struct {
	// LockExpiry bounds how long a borrow may hold a slot before the shared
	// store reclaims the lock from a crashed holder.
	LockExpiry time.Duration
	// RescanInterval is the sleep between full eligibility scans when no
	// slot is currently available.
	RescanInterval time.Duration
	// Logger defaults to a no-op logger when nil.
	Logger logging.Logger
}

// Pool owns the set of ModelSlots and implements borrow/return with
// randomized selection, retry-with-backoff and exhaustion eviction.
type Pool struct {
	mu      sync.RWMutex
	slots   []*ModelSlot
	creds   []Credential
	store   store.Store
	factory ModelFactory
	opts    Options
	rnd     *rand.Rand
	rndMu   sync.Mutex
	logger  logging.Logger
}

// New builds a pool with one ModelSlot per credential.
func New(creds []Credential, st store.Store, factory ModelFactory, opts Options) (*Pool, error) {
	if len(creds) == 0 {
		return nil, errors.New("pool requires at least one credential")
	}
	if opts.LockExpiry <= 0 {
		opts.LockExpiry = 30 * time.Second
	}
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = 250 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	p := &Pool{
		creds:   creds,
		store:   st,
		factory: factory,
		opts:    opts,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}
	if err := p.initSlots(); err != nil {
		return nil, err
	}
	return p, nil
}

// initSlots (re)builds every model slot from the configured credentials.
func (p *Pool) initSlots() error {
	slots := make([]*ModelSlot, 0, len(p.creds))
	for _, cred := range p.creds {
		m, err := p.factory(cred)
		if err != nil {
			return err
		}
		slots = append(slots, NewModelSlot(NewCredentialSlot(cred, p.store), m))
	}
	p.mu.Lock()
	p.slots = slots
	p.mu.Unlock()
	p.logger.Info("credential pool initialized", "slots", len(slots))
	return nil
}

// Refresh rebuilds all slots from the configured credentials, reinstating any
// previously evicted ones whose exhausted flag has been cleared externally.
func (p *Pool) Refresh() error { return p.initSlots() }

// Size returns the number of slots currently in the active set.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.slots)
}

// String renders the active slot inventory for logs and operational tooling.
func (p *Pool) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.slots))
	for i, slot := range p.slots {
		names[i] = slot.Name()
	}
	return fmt.Sprintf("Pool(%d slots: %s)", len(names), strings.Join(names, ", "))
}

// shuffledSlots returns a randomized copy of the active set. Randomizing the
// scan order each attempt keeps one hot credential from starving the rest.
func (p *Pool) shuffledSlots() []*ModelSlot {
	p.mu.RLock()
	slots := make([]*ModelSlot, len(p.slots))
	copy(slots, p.slots)
	p.mu.RUnlock()

	p.rndMu.Lock()
	p.rnd.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })
	p.rndMu.Unlock()
	return slots
}

// Borrow finds a slot that can absorb tokensNeeded, locks it and returns it
// together with the lock token. Eligibility is re-checked under the shared
// store on every attempt: not locked, not cooling down, not exhausted, and
// usage+tokensNeeded within capacity. Lock acquisition may race with other
// borrowers and lose, in which case the scan moves to the next slot.
//
// A timeout of zero waits indefinitely (until ctx is done). Exceeding a
// positive timeout returns ErrBorrowTimeout.
func (p *Pool) Borrow(ctx context.Context, tokensNeeded int64, timeout time.Duration) (*ModelSlot, string, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if p.Size() == 0 {
			return nil, "", ErrPoolDrained
		}

		for _, slot := range p.shuffledSlots() {
			eligible, err := p.eligible(ctx, slot, tokensNeeded)
			if err != nil {
				return nil, "", err
			}
			if !eligible {
				continue
			}
			token, ok, err := slot.AcquireLock(ctx, p.opts.LockExpiry)
			if err != nil {
				return nil, "", err
			}
			if !ok {
				// Lost the acquisition race; try the next slot.
				continue
			}
			// The no-oversubscription invariant is checked again while
			// holding the lock: another borrower may have recorded usage
			// between the scan and the acquisition.
			canAccept, err := slot.CanAccept(ctx, tokensNeeded)
			if err != nil {
				_ = slot.ReleaseLock(ctx, token)
				return nil, "", err
			}
			if !canAccept {
				_ = slot.ReleaseLock(ctx, token)
				continue
			}
			p.logger.Debug("borrowed credential slot", "slot", slot.Name(), "tokens_needed", tokensNeeded)
			return slot, token, nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, "", ErrBorrowTimeout
		}

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(p.opts.RescanInterval):
		}
	}
}

// eligible applies the borrow preconditions that do not require the lock.
func (p *Pool) eligible(ctx context.Context, slot *ModelSlot, tokensNeeded int64) (bool, error) {
	if exhausted, err := slot.Exhausted(ctx); err != nil || exhausted {
		return false, err
	}
	if cooling, err := slot.InCooldown(ctx); err != nil || cooling {
		return false, err
	}
	if locked, err := slot.IsLocked(ctx); err != nil || locked {
		return false, err
	}
	return slot.CanAccept(ctx, tokensNeeded)
}

// Return releases a borrowed slot. A mismatched token fails loudly with
// ErrLockMismatch.
func (p *Pool) Return(ctx context.Context, slot *ModelSlot, token string) error {
	if err := slot.ReleaseLock(ctx, token); err != nil {
		return err
	}
	p.logger.Debug("returned credential slot", "slot", slot.Name())
	return nil
}

// RecordUsage adds tokensUsed to the slot's cumulative counter. The effect is
// global, affecting all users of the pool, not scoped to one session.
func (p *Pool) RecordUsage(ctx context.Context, slot *ModelSlot, tokensUsed int64) error {
	return slot.RecordUsage(ctx, tokensUsed)
}

// MarkExhausted flags the slot and evicts it from the active set. The flag is
// shared; the eviction is local and mirrored by other processes on their next
// eligibility scan. Returns ErrPoolDrained if no active slots remain.
func (p *Pool) MarkExhausted(ctx context.Context, slot *ModelSlot, reason string) error {
	if err := slot.MarkExhausted(ctx, reason); err != nil {
		return err
	}
	p.mu.Lock()
	for i, s := range p.slots {
		if s == slot {
			p.slots = append(p.slots[:i], p.slots[i+1:]...)
			break
		}
	}
	remaining := len(p.slots)
	p.mu.Unlock()

	p.logger.Warn("credential slot exhausted", "slot", slot.Name(), "reason", reason, "remaining", remaining)
	if remaining == 0 {
		p.logger.Error("all credential slots exhausted")
		return ErrPoolDrained
	}
	return nil
}

// MarkAvailable clears the slot's exhausted flag and reinstates it into the
// active set if it was evicted.
func (p *Pool) MarkAvailable(ctx context.Context, slot *ModelSlot) error {
	if err := slot.MarkAvailable(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	present := false
	for _, s := range p.slots {
		if s == slot {
			present = true
			break
		}
	}
	if !present {
		p.slots = append(p.slots, slot)
	}
	p.mu.Unlock()
	p.logger.Info("credential slot reinstated", "slot", slot.Name())
	return nil
}
