package client

// State represents the lifecycle state of a connection
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateReady
	StateClosed
)

// String returns a string representation of the connection state
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// canTransition reports whether from -> to is allowed. States only move
// forward one step at a time, except that any state may move to closed.
func canTransition(from, to State) bool {
	if from == StateClosed {
		return false
	}
	if to == StateClosed {
		return true
	}
	return to == from+1
}
