package runtime

import (
	"context"
	"math/rand"
	"time"
)

// JitteredDelay returns base varied by ±jitterPct percent, clamped to cap.
// A non-positive jitterPct means 25.
func JitteredDelay(base, cap time.Duration, jitterPct int) time.Duration {
	if jitterPct <= 0 {
		jitterPct = 25
	}
	delta := (rand.Float64()*2 - 1) * float64(jitterPct) / 100.0
	wait := time.Duration(float64(base) * (1 + delta))
	if wait < 0 {
		wait = base
	}
	if wait > cap {
		wait = cap
	}
	return wait
}

// Backoff is exponential with jitter: each Next doubles the base up to Max.
// It is not safe for concurrent use.
type Backoff struct {
	Initial   time.Duration
	Max       time.Duration
	JitterPct int

	current time.Duration
}

// NewBackoff returns a backoff starting at initial and capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{Initial: initial, Max: max, JitterPct: 20}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	if b.current <= 0 {
		b.current = b.Initial
	}
	wait := JitteredDelay(b.current, b.Max, b.JitterPct)
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return wait
}

// Reset starts the sequence over after a successful attempt.
func (b *Backoff) Reset() {
	b.current = 0
}

// Sleep waits d or until ctx is done. It reports whether the full delay
// elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
