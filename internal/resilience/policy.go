// Package resilience computes retry delays for reconnection and dial retries.
package resilience

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// JitterFactor is the half-width of the uniform jitter window (±25%).
const JitterFactor = 0.25

// Rand is the randomness source used for jitter. *rand.Rand from
// math/rand/v2 satisfies it; tests pass a seeded one.
type Rand interface {
	Float64() float64
}

// Policy is an exponential backoff schedule.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	Rand         Rand // nil uses the global math/rand/v2 source
}

// DefaultPolicy returns a 1s..30s doubling schedule with jitter.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Delay returns the wait before the given zero-based attempt:
// min(initial * multiplier^attempt, max), optionally scaled by a uniform
// factor in [0.75, 1.25).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 1 - JitterFactor + 2*JitterFactor*p.random()
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p Policy) random() float64 {
	if p.Rand != nil {
		return p.Rand.Float64()
	}
	return globalRand{}.Float64()
}

// NewBackOff adapts the policy to backoff.BackOff. Each NextBackOff call
// advances the attempt counter; Reset rewinds it.
func (p Policy) NewBackOff() backoff.BackOff {
	return &policyBackOff{policy: p}
}

type policyBackOff struct {
	policy  Policy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	d := b.policy.Delay(b.attempt)
	b.attempt++
	return d
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}
