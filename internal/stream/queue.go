package stream

// outQueue is the FIFO buffer for frames that cannot be sent immediately
// (not yet connected, or rate-limited). Owned by the manager's event loop.
type outQueue struct {
	items []OutboundFrame
}

// push appends a frame to the tail.
func (q *outQueue) push(f OutboundFrame) {
	q.items = append(q.items, f)
}

// pushFront re-inserts a frame at the head. Used when a write fails after the
// frame was already popped, so it is not lost and FIFO order holds.
func (q *outQueue) pushFront(f OutboundFrame) {
	q.items = append([]OutboundFrame{f}, q.items...)
}

// pop removes and returns the head frame.
func (q *outQueue) pop() (OutboundFrame, bool) {
	if len(q.items) == 0 {
		return OutboundFrame{}, false
	}
	f := q.items[0]
	q.items = q.items[1:]
	return f, true
}

func (q *outQueue) len() int {
	return len(q.items)
}
