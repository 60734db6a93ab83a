package stream

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, w := range want {
		if got := BackoffDelay(attempt, base, max); got != w {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffDelayNegativeAttempt(t *testing.T) {
	if got := BackoffDelay(-3, time.Second, 30*time.Second); got != time.Second {
		t.Errorf("got %v, want %v", got, time.Second)
	}
}

func TestBackoffDelayHugeAttemptNoOverflow(t *testing.T) {
	max := 30 * time.Second
	if got := BackoffDelay(64, time.Second, max); got != max {
		t.Errorf("got %v, want %v", got, max)
	}
}
