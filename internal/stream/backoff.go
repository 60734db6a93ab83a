package stream

import "time"

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffMax  = 30 * time.Second

	// DefaultMaxAttempts is the number of reconnect cycles before the
	// manager gives up and enters the error state.
	DefaultMaxAttempts = 10
)

// BackoffDelay returns the exponential backoff duration for a reconnect
// attempt. Logic: base * 2^attempt, capped at max. Deterministic, no jitter.
// A negative attempt returns base.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		return base
	}

	// 2^30 seconds already exceeds any sane cap; avoid shift overflow.
	if attempt > 30 {
		return max
	}

	d := base * time.Duration(1<<uint(attempt))
	if d > max {
		return max
	}
	return d
}
