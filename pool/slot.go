package pool

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/agentpool/model"
)

// defaultCooldown is applied when a rate-limit error carries no retry-after hint.
const defaultCooldown = 5 * time.Second

// retryAfterRe extracts the retry hint some providers embed in rate-limit
// error messages, e.g. "Please try again in 2.5s".
var retryAfterRe = regexp.MustCompile(`try again in ([\d.]+)s`)

// ModelSlot pairs a CredentialSlot with one reusable model client handle built
// from that credential. The wrapper is stateless; handles are rebuilt only on
// pool initialization or refresh.
type ModelSlot struct {
	*CredentialSlot
	model model.Model
}

// NewModelSlot wraps a credential slot with its model client.
func NewModelSlot(cred *CredentialSlot, m model.Model) *ModelSlot {
	return &ModelSlot{CredentialSlot: cred, model: m}
}

// Model exposes the reusable client handle.
func (s *ModelSlot) Model() model.Model { return s.model }

// Invoke runs one model invocation on this slot's client and classifies
// provider failures into pool-level outcomes:
//
//   - quota exhaustion marks the credential exhausted and returns
//     *QuotaExhaustedError (caller must also evict via Pool.MarkExhausted)
//   - rate limiting sets a cooldown on this slot only, honouring any
//     retry-after hint in the error text, and returns *RateLimitedError so the
//     caller can retry on a different slot
//   - anything else propagates unchanged
func (s *ModelSlot) Invoke(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := s.model.Invoke(ctx, req)
	if err == nil {
		return resp, nil
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "insufficient_quota") || strings.Contains(lower, "exceeded your current quota") {
		if merr := s.MarkExhausted(ctx, msg); merr != nil {
			return nil, merr
		}
		return nil, &QuotaExhaustedError{Slot: s.Name(), Reason: msg}
	}

	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit_exceeded") {
		delay := defaultCooldown
		if m := retryAfterRe.FindStringSubmatch(msg); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
				delay = time.Duration(secs * float64(time.Second))
			}
		}
		if cerr := s.SetCooldown(ctx, delay); cerr != nil {
			return nil, cerr
		}
		return nil, &RateLimitedError{Slot: s.Name(), RetryAfter: delay}
	}

	return nil, err
}
