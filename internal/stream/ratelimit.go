package stream

import "time"

// rateGate tracks whether outbound traffic is currently suppressed by a
// server rate limit, and until when. Owned by the manager's event loop; the
// expiry timer only reopens the gate, it never flushes the queue — that
// happens on the next send attempt or reconnect.
type rateGate struct {
	limited bool
	until   time.Time
}

// limit closes the gate for d from now.
func (g *rateGate) limit(now time.Time, d time.Duration) {
	g.limited = true
	g.until = now.Add(d)
}

// open reopens the gate.
func (g *rateGate) open() {
	g.limited = false
	g.until = time.Time{}
}

// isLimited reports whether sends are currently suppressed. The deadline
// check covers the window between expiry and the timer firing.
func (g *rateGate) isLimited(now time.Time) bool {
	if !g.limited {
		return false
	}
	if !now.Before(g.until) {
		g.open()
		return false
	}
	return true
}

// remaining returns how long the gate stays closed from now.
func (g *rateGate) remaining(now time.Time) time.Duration {
	if !g.limited {
		return 0
	}
	return g.until.Sub(now)
}
