package net

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// InmemTransport implements the Transport interface with a registry of
// identities living in the same process. It allows graphshare to be tested
// in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	identities map[string]*inmemIdentity
}

// NewInmemTransport returns an empty registry.
func NewInmemTransport() *InmemTransport {
	return &InmemTransport{
		identities: make(map[string]*inmemIdentity),
	}
}

// NewIdentity implements the Transport interface. An empty id is replaced with
// a random UUID.
func (t *InmemTransport) NewIdentity(ctx context.Context, id string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if id == "" {
		id = uuid.New().String()
	}

	t.Lock()
	defer t.Unlock()

	if _, ok := t.identities[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerIDTaken, id)
	}

	identity := &inmemIdentity{
		id:        id,
		transport: t,
		inbound:   make(chan Connection, 16),
		conns:     make(map[*inmemConn]struct{}),
	}
	t.identities[id] = identity

	return identity, nil
}

func (t *InmemTransport) lookup(id string) (*inmemIdentity, bool) {
	t.RLock()
	defer t.RUnlock()
	identity, ok := t.identities[id]
	return identity, ok
}

func (t *InmemTransport) remove(id string) {
	t.Lock()
	defer t.Unlock()
	delete(t.identities, id)
}

type inmemIdentity struct {
	sync.Mutex
	id        string
	transport *InmemTransport
	inbound   chan Connection
	conns     map[*inmemConn]struct{}
	closed    bool
}

// ID implements the Identity interface.
func (i *inmemIdentity) ID() string {
	return i.id
}

// Accept implements the Identity interface.
func (i *inmemIdentity) Accept() <-chan Connection {
	return i.inbound
}

// Connect implements the Identity interface. It fails immediately if no
// identity is registered under remoteID.
func (i *inmemIdentity) Connect(remoteID string) (Connection, error) {
	i.Lock()
	closed := i.closed
	i.Unlock()
	if closed {
		return nil, ErrIdentityClosed
	}

	remote, ok := i.transport.lookup(remoteID)
	if !ok {
		return nil, fmt.Errorf("failed to connect to peer: %v", remoteID)
	}

	p := &inmemPipe{}
	local := &inmemConn{pipe: p, owner: i, remoteID: remoteID, events: newEventQueue()}
	peer := &inmemConn{pipe: p, owner: remote, remoteID: i.id, events: newEventQueue()}
	local.peer = peer
	peer.peer = local

	if !i.track(local) {
		return nil, ErrIdentityClosed
	}

	if !remote.deliver(peer) {
		// nobody will ever read the events of the undelivered end
		go func() {
			for range peer.Events() {
			}
		}()
		local.fail(fmt.Errorf("peer %s is not accepting connections", remoteID))
		return local, nil
	}

	go p.open(local, peer)

	return local, nil
}

// deliver hands an inbound connection to the identity.
func (i *inmemIdentity) deliver(c *inmemConn) bool {
	i.Lock()
	defer i.Unlock()

	if i.closed {
		return false
	}

	select {
	case i.inbound <- c:
		i.conns[c] = struct{}{}
		return true
	default:
		return false
	}
}

func (i *inmemIdentity) track(c *inmemConn) bool {
	i.Lock()
	defer i.Unlock()
	if i.closed {
		return false
	}
	i.conns[c] = struct{}{}
	return true
}

func (i *inmemIdentity) untrack(c *inmemConn) {
	i.Lock()
	defer i.Unlock()
	delete(i.conns, c)
}

// Close implements the Identity interface.
func (i *inmemIdentity) Close() error {
	i.Lock()
	if i.closed {
		i.Unlock()
		return nil
	}
	i.closed = true
	conns := make([]*inmemConn, 0, len(i.conns))
	for c := range i.conns {
		conns = append(conns, c)
	}
	close(i.inbound)
	i.Unlock()

	i.transport.remove(i.id)

	for _, c := range conns {
		c.Close()
	}

	return nil
}

// inmemPipe is the state shared by both ends of an in-memory connection. Its
// lock orders the events pushed to both ends.
type inmemPipe struct {
	sync.Mutex
	opened bool
	closed bool
}

func (p *inmemPipe) open(a, b *inmemConn) {
	p.Lock()
	defer p.Unlock()

	if p.closed {
		return
	}
	p.opened = true
	a.events.push(Event{Kind: EventOpen})
	b.events.push(Event{Kind: EventOpen})
}

type inmemConn struct {
	pipe     *inmemPipe
	owner    *inmemIdentity
	peer     *inmemConn
	remoteID string
	events   *eventQueue
}

// RemoteID implements the Connection interface.
func (c *inmemConn) RemoteID() string {
	return c.remoteID
}

// IsOpen implements the Connection interface.
func (c *inmemConn) IsOpen() bool {
	c.pipe.Lock()
	defer c.pipe.Unlock()
	return c.pipe.opened
}

// Send implements the Connection interface. The message is copied.
func (c *inmemConn) Send(data []byte) error {
	c.pipe.Lock()
	defer c.pipe.Unlock()

	if !c.pipe.opened {
		return ErrConnectionNotOpen
	}

	msg := make([]byte, len(data))
	copy(msg, data)
	c.peer.events.push(Event{Kind: EventData, Data: msg})

	return nil
}

// Events implements the Connection interface.
func (c *inmemConn) Events() <-chan Event {
	return c.events.events()
}

// Close implements the Connection interface. Both ends receive EventClose.
func (c *inmemConn) Close() error {
	c.pipe.Lock()
	if c.pipe.closed {
		c.pipe.Unlock()
		return nil
	}
	c.pipe.closed = true
	c.pipe.opened = false
	c.events.push(Event{Kind: EventClose})
	c.peer.events.push(Event{Kind: EventClose})
	c.pipe.Unlock()

	c.owner.untrack(c)
	c.peer.owner.untrack(c.peer)

	return nil
}

// fail reports an error and closes the connection.
func (c *inmemConn) fail(err error) {
	c.events.push(Event{Kind: EventError, Err: err})
	c.Close()
}
