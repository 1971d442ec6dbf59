// Package connection manages per-room voice connections.
package connection

// State represents the connection state of a room.
type State int

const (
	StateDisconnected State = iota // No handle
	StateConnecting                // Join in progress (may retry)
	StateConnected                 // Handle ready
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
