package pool

import (
	"errors"
	"fmt"
	"time"
)

// ErrBorrowTimeout is returned when Borrow gives up waiting for an eligible slot.
var ErrBorrowTimeout = errors.New("no credential slot became available within the timeout")

// ErrPoolDrained is returned when every credential in the pool has been
// marked exhausted. This is fatal for the pool: no further work can be served
// until a credential is reinstated.
var ErrPoolDrained = errors.New("all credential slots are exhausted")

// ErrLockMismatch is returned when a lock release is attempted with a token
// that does not hold the lock. It guards against double-return and stale
// callers releasing a lock that has been re-acquired by someone else.
var ErrLockMismatch = errors.New("lock token does not match current holder")

// QuotaExhaustedError indicates the provider rejected the credential for good
// (quota spent). The slot has already been evicted from the pool when this is
// returned.
type QuotaExhaustedError struct {
	Slot   string
	Reason string
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("credential %q quota exhausted: %s", e.Slot, e.Reason)
}

// RateLimitedError indicates the provider transiently throttled this
// credential. The slot has been put into cooldown for RetryAfter; the caller
// should retry on a different slot.
type RateLimitedError struct {
	Slot       string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("credential %q rate limited, retry after %s", e.Slot, e.RetryAfter)
}
