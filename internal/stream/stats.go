package stream

import (
	"sync"
	"time"
)

// Stats is a read-only snapshot of the streaming counters. Counters are
// monotonically increasing and reset only on manager construction. Purely
// observational; safe to poll at any rate.
type Stats struct {
	MessagesReceived    uint64    `json:"messages_received"`
	TicksReceived       uint64    `json:"ticks_received"`
	Errors              uint64    `json:"errors"`
	LastActivity        time.Time `json:"last_activity"`
	ConnectionStartTime time.Time `json:"connection_start_time"`
	SubscriptionCount   int       `json:"subscription_count"`
}

// statsBox guards the counters so Stats() can be called from any goroutine
// while the event loop mutates them.
type statsBox struct {
	mu sync.Mutex
	s  Stats
}

func (b *statsBox) message(now time.Time) {
	b.mu.Lock()
	b.s.MessagesReceived++
	b.s.LastActivity = now
	b.mu.Unlock()
}

func (b *statsBox) tick() {
	b.mu.Lock()
	b.s.TicksReceived++
	b.mu.Unlock()
}

func (b *statsBox) errored() {
	b.mu.Lock()
	b.s.Errors++
	b.mu.Unlock()
}

func (b *statsBox) connected(now time.Time) {
	b.mu.Lock()
	b.s.ConnectionStartTime = now
	b.s.LastActivity = now
	b.mu.Unlock()
}

func (b *statsBox) setSubscriptions(n int) {
	b.mu.Lock()
	b.s.SubscriptionCount = n
	b.mu.Unlock()
}

func (b *statsBox) lastActivity() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.s.LastActivity
}

func (b *statsBox) snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.s
}

// Observer receives streaming events for export to an external metrics
// system. Implementations must be cheap and non-blocking; a nil Observer is
// replaced by a no-op.
type Observer interface {
	MessageReceived()
	TickReceived()
	ErrorReceived(code string)
	ReconnectScheduled()
	SendQueued()
	StateChanged(state string)
}

type noopObserver struct{}

func (noopObserver) MessageReceived()         {}
func (noopObserver) TickReceived()            {}
func (noopObserver) ErrorReceived(string)     {}
func (noopObserver) ReconnectScheduled()      {}
func (noopObserver) SendQueued()              {}
func (noopObserver) StateChanged(string)      {}
