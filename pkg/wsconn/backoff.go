package wsconn

import (
	"math"
	"math/rand"
	"time"
)

// Backoff defines reconnect delay behavior.
type Backoff struct {
	// Base is the delay for the first attempt.
	Base time.Duration
	// Multiplier scales the delay per attempt.
	Multiplier float64
	// Max caps the delay before jitter.
	Max time.Duration
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       1 * time.Second,
		Multiplier: 2.0,
		Max:        30 * time.Second,
		Jitter:     0.5,
	}
}

// Next returns the delay before the given attempt (0-based).
//
// Jitter spreads simultaneous reconnects from many clients so they do not
// hammer the endpoint in lockstep.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := b.Base
	if base <= 0 {
		base = 1 * time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	multiplier := b.Multiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}

	wait := time.Duration(float64(base) * math.Pow(multiplier, float64(attempt)))
	if wait > max || wait <= 0 {
		wait = max
	}

	jitter := b.Jitter
	if jitter <= 0 {
		return wait
	}
	if jitter > 1 {
		jitter = 1
	}
	wait += time.Duration(rand.Float64() * jitter * float64(wait))
	return wait.Truncate(time.Millisecond)
}
