// Package backoff provides the retry primitives shared by the background
// agent (fixed, cancelable delays between episode attempts) and the
// durable event backend (exponential delay for transient append failures).
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes an exponential delay curve with jitter.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64
}

// DefaultPolicy is the curve applied to transient backend failures:
// 100ms doubling up to 30s with 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		Initial: 100 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// Delay returns the wait after the given 1-indexed failed attempt:
// attempt 1 waits Initial, each further attempt multiplies by Factor,
// plus a random jitter fraction, clamped to Max.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand is Delay with an injected random value in [0,1), so tests
// can assert exact durations.
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	withJitter := base + base*p.Jitter*randomValue
	return time.Duration(math.Min(withJitter, float64(p.Max)))
}
