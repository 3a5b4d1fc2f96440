package guest

import (
	"sync/atomic"
)

// State captures the lifecycle of the connection of a Guest: Idle,
// Connecting, Open, or Closed. Connecting may be re-entered from Closed.
type State uint32

const (
	// Idle is the initial state
	Idle State = iota
	// Connecting while a handshake is running
	Connecting
	// Open when connected to a host
	Open
	// Closed after a failed handshake, a remote close, or a disconnection
	Closed
)

// String ...
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}
