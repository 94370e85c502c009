// Package backoff provides the retry pacing policy shared by the sync
// orchestrator's queue drain and the assessment job path. Keeping one value
// object as the single source of truth for the curve means repeated
// transient failures degrade at the same rate everywhere.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Curve constants.
const (
	growthFactor   = 2.0
	jitterFraction = 0.25
)

// Policy computes retry decisions and delays. Attempt numbering is
// zero-based: attempt 0 is the first retry after the initial failure.
// The zero value is unusable; construct with New.
type Policy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration

	// randFloat is injectable so tests can pin the jitter.
	randFloat func() float64
}

// New creates a Policy with exponential growth from base, capped at max,
// allowing up to maxRetries attempts.
func New(maxRetries int, base, max time.Duration) *Policy {
	return &Policy{
		maxRetries: maxRetries,
		base:       base,
		max:        max,
		randFloat:  rand.Float64,
	}
}

// MaxRetries returns the attempt cap.
func (p *Policy) MaxRetries() int { return p.maxRetries }

// ShouldRetry reports whether another attempt is inside the retry budget.
func (p *Policy) ShouldRetry(attempt int) bool {
	return attempt < p.maxRetries
}

// NextDelay computes the delay before the given attempt: exponential growth
// with ±25% jitter, capped at the configured maximum.
func (p *Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.base) * math.Pow(growthFactor, float64(attempt))
	if delay > float64(p.max) {
		delay = float64(p.max)
	}

	jitter := delay * jitterFraction * (p.randFloat()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	delay += jitter

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}
