package stream

// State represents the connection lifecycle state. Exactly one value is
// active at a time; transitions are driven solely by the manager's event loop.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
	// StateNotReady is a connected-but-unusable substate entered when the
	// server reports SERVICE_NOT_READY. The transport stays open.
	StateNotReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	case StateNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// live reports whether the transport is usable for outbound writes.
func (s State) live() bool {
	return s == StateConnected || s == StateNotReady
}
