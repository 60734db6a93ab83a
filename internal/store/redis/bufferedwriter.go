package redis

import (
	"context"
	"log"
	"sync"

	"tickstream/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// During circuit-open state only the latest tick per instrument is held
// locally; older snapshots for the same token are worthless once a newer one
// exists, so the buffer is a map, not a log. The held ticks are flushed when
// the circuit closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu      sync.Mutex
	pending map[int64]model.Tick

	// Callbacks
	OnBuffer func()          // called when a tick is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered ticks
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker) *BufferedWriter {
	bw := &BufferedWriter{
		writer:  w,
		cb:      cb,
		ctx:     ctx,
		pending: make(map[int64]model.Tick),
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteTick writes a tick through the circuit breaker.
// If the circuit is open, the latest tick per token is held for later flush.
func (bw *BufferedWriter) WriteTick(t model.Tick) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.writeTick(bw.ctx, t)
	})
	if err == ErrCircuitOpen {
		bw.bufferTick(t)
		return nil // held, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferTick(t model.Tick) {
	bw.mu.Lock()
	bw.pending[t.InstrumentToken] = t
	bw.mu.Unlock()

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays the held latest-per-token ticks through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.pending) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the pending set
	toFlush := bw.pending
	bw.pending = make(map[int64]model.Tick)
	bw.mu.Unlock()

	flushed := 0
	for _, t := range toFlush {
		if err := bw.writer.writeTick(bw.ctx, t); err != nil {
			log.Printf("[buffered-writer] flush write error: %v", err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered ticks", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of instruments with a tick waiting to flush.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.pending)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
