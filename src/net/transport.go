package net

import (
	"context"
	"errors"
)

var (
	// ErrConnectionNotOpen is returned when sending on a connection that is not
	// open yet, or not anymore.
	ErrConnectionNotOpen = errors.New("connection not open")

	// ErrIdentityClosed is returned when using an identity after Close.
	ErrIdentityClosed = errors.New("identity closed")

	// ErrPeerIDTaken is returned when creating an identity with an id that is
	// already registered.
	ErrPeerIDTaken = errors.New("peer id already registered")

	// ErrMessageTooLarge is returned when a message exceeds the maximum size
	// accepted by a connection.
	ErrMessageTooLarge = errors.New("message too large")
)

// Transport creates local identities.
type Transport interface {
	// NewIdentity registers a local identity under id, or under a
	// self-assigned id if id is empty. It blocks until the identity is ready
	// to dial and be dialed, or fails.
	NewIdentity(ctx context.Context, id string) (Identity, error)
}

// Identity is a peer registered with a transport.
type Identity interface {
	// ID returns the id under which other peers can reach this identity.
	ID() string

	// Connect starts dialing the identity registered under remoteID. The
	// returned Connection reports the outcome of the negotiation through its
	// events: Open on success, Error and Close on failure.
	Connect(remoteID string) (Connection, error)

	// Accept returns the channel of inbound connections. Inbound connections
	// may not be open yet when they are received. The channel is closed when
	// the identity is closed.
	Accept() <-chan Connection

	// Close closes all the connections of the identity and unregisters it.
	Close() error
}

// Connection is an ordered, reliable, message-oriented channel between two
// identities.
type Connection interface {
	// RemoteID returns the id of the identity at the other end.
	RemoteID() string

	// IsOpen reports whether messages can be sent.
	IsOpen() bool

	// Send sends one message. Messages are delivered in the order they were
	// sent.
	Send(data []byte) error

	// Events returns the channel through which the connection reports its
	// lifecycle and inbound messages. Consumers must drain it until it is
	// closed.
	Events() <-chan Event

	// Close closes the connection. It is safe to call multiple times.
	Close() error
}

// EventKind identifies the kind of an Event.
type EventKind uint8

const (
	// EventOpen is emitted once, when the connection becomes usable.
	EventOpen EventKind = iota
	// EventData carries an inbound message.
	EventData
	// EventError reports a failure. It may be followed by EventClose.
	EventError
	// EventClose is always the last event of a connection.
	EventClose
)

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is emitted by a Connection.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}
