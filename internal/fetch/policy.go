package fetch

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy contains the retry configuration for one class of upstream.
type Policy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	DefaultTimeout time.Duration
}

// PrimaryPolicy returns the policy used for identity, profile, membership and inventory calls.
func PrimaryPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		BaseDelay:      2 * time.Second,
		MaxDelay:       6 * time.Second,
		DefaultTimeout: 10 * time.Second,
	}
}

// SecondaryPolicy returns the policy used for pricing calls.
func SecondaryPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		DefaultTimeout: 6 * time.Second,
	}
}

// withDefaults fills zero fields from the given fallback policy.
func (p Policy) withDefaults(fallback Policy) Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	if p.BaseDelay <= 0 {
		p.BaseDelay = fallback.BaseDelay
	}

	if p.MaxDelay <= 0 {
		p.MaxDelay = fallback.MaxDelay
	}

	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}

	if p.DefaultTimeout <= 0 {
		p.DefaultTimeout = fallback.DefaultTimeout
	}

	return p
}

// linearBackOff waits min(base*attempt, max) before each retry.
// A hint set by the last response overrides the curve when it is shorter than max.
type linearBackOff struct {
	base    time.Duration
	max     time.Duration
	attempt int64
	hint    time.Duration
	mu      sync.Mutex
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func newLinearBackOff(p Policy) *linearBackOff {
	return &linearBackOff{base: p.BaseDelay, max: p.MaxDelay}
}

// NextBackOff returns the delay before the next attempt.
func (b *linearBackOff) NextBackOff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempt++

	if b.hint > 0 {
		hint := b.hint
		b.hint = 0

		return min(hint, b.max)
	}

	return min(b.base*time.Duration(b.attempt), b.max)
}

// Reset restarts the curve at the first attempt.
func (b *linearBackOff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempt = 0
	b.hint = 0
}

// useHint overrides the next delay, typically from a Retry-After header.
func (b *linearBackOff) useHint(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hint = d
}
