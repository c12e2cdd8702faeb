// Package retry implements the stateless retry policy (C3): given an
// attempt count, it yields the next delay or signals exhaustion.
//
// The formulas below are spec-exact and stay on stdlib math rather
// than wrapping github.com/cenkalti/backoff: that library models a
// stateful, self-advancing backoff (NextBackOff mutates internal
// state), while this contract needs a pure function of an external
// attempt counter so the coordinator can recompute Delay(attempt) for
// an id that was re-picked up in a later drain cycle. See DESIGN.md.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config is the configuration record a Scheduler is built from.
type Config struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxAttempts  int
}

// Predefined profiles (§4.3).
var (
	ProfileDefault = Config{
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     15 * time.Second,
		MaxAttempts:  3,
	}
	ProfileConservative = Config{
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  5,
	}
	ProfileAggressive = Config{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   1.5,
		MaxDelay:     10 * time.Second,
		MaxAttempts:  3,
	}
	ProfileFast = Config{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
		MaxAttempts:  2,
	}
)

// DefaultJitterFraction is used by DelayWithJitter when the caller does
// not supply one.
const DefaultJitterFraction = 0.1

// Scheduler is a purely functional policy over a Config; it holds no
// mutable state and is safe for concurrent use by construction.
type Scheduler struct {
	cfg Config
}

func New(cfg Config) Scheduler {
	return Scheduler{cfg: cfg}
}

// Delay returns min(initialDelay * multiplier^(attempt-1), maxDelay)
// for attempt >= 1, and 0 for attempt <= 0 (P6 bounds this at MaxDelay).
func (s Scheduler) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(s.cfg.InitialDelay) * math.Pow(s.cfg.Multiplier, float64(attempt-1))
	max := float64(s.cfg.MaxDelay)
	if d > max {
		d = max
	}
	return time.Duration(d)
}

// DelayWithJitter applies +/- jitterFraction*Delay(attempt) uniform
// noise, floored at zero. jitterFraction <= 0 falls back to
// DefaultJitterFraction.
func (s Scheduler) DelayWithJitter(attempt int, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		jitterFraction = DefaultJitterFraction
	}
	base := s.Delay(attempt)
	if base <= 0 {
		return 0
	}
	jitter := float64(base) * jitterFraction
	offset := (rand.Float64()*2 - 1) * jitter // U(-jitter, +jitter)
	d := float64(base) + offset
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// ShouldRetry reports whether attempt has not yet exhausted the budget.
func (s Scheduler) ShouldRetry(attempt int) bool {
	return attempt < s.cfg.MaxAttempts
}

// MaxAttempts returns the configured attempt budget.
func (s Scheduler) MaxAttempts() int { return s.cfg.MaxAttempts }

// MaxTotalWait sums Delay(k) for k in 1..maxAttempts-1: the worst-case
// wall-clock an entry spends retrying before exhaustion.
func (s Scheduler) MaxTotalWait() time.Duration {
	var total time.Duration
	for k := 1; k < s.cfg.MaxAttempts; k++ {
		total += s.Delay(k)
	}
	return total
}
