package stream

import (
	"testing"
	"time"
)

func TestOutQueueFIFO(t *testing.T) {
	var q outQueue
	q.push(OutboundFrame{Action: ActionPing})
	q.push(OutboundFrame{Action: ActionSubscribe, Tokens: []int64{1}})
	q.push(OutboundFrame{Action: ActionUnsubscribe, Tokens: []int64{2}})

	want := []Action{ActionPing, ActionSubscribe, ActionUnsubscribe}
	for i, w := range want {
		f, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if f.Action != w {
			t.Errorf("pop %d: got %q, want %q", i, f.Action, w)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("queue not empty after draining")
	}
}

func TestOutQueuePushFrontPreservesOrder(t *testing.T) {
	var q outQueue
	q.push(OutboundFrame{Action: ActionSubscribe})
	q.push(OutboundFrame{Action: ActionPing})

	f, _ := q.pop()
	q.pushFront(f) // simulated write failure

	first, _ := q.pop()
	second, _ := q.pop()
	if first.Action != ActionSubscribe || second.Action != ActionPing {
		t.Errorf("order after requeue: got [%q %q], want [subscribe ping]", first.Action, second.Action)
	}
}

func TestRateGateLifecycle(t *testing.T) {
	var g rateGate
	now := time.Now()

	if g.isLimited(now) {
		t.Fatal("fresh gate limited")
	}

	g.limit(now, 5*time.Second)
	if !g.isLimited(now) {
		t.Fatal("gate open immediately after limit")
	}
	if rem := g.remaining(now); rem != 5*time.Second {
		t.Errorf("remaining: got %v, want 5s", rem)
	}

	// Past the deadline the gate opens on its own even before the timer fires.
	if g.isLimited(now.Add(6 * time.Second)) {
		t.Error("gate still limited past deadline")
	}
	if g.isLimited(now) {
		t.Error("gate did not stay open")
	}
}
