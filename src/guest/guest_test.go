package guest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mosaicnetworks/graphshare/src/common"
	"github.com/mosaicnetworks/graphshare/src/graph"
	"github.com/mosaicnetworks/graphshare/src/net"
	"github.com/mosaicnetworks/graphshare/src/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal host: it sends a snapshot when a connection opens, and
// answers file requests from a map unless it is silent.
type fakeHost struct {
	identity net.Identity
	files    map[string]string
	silent   bool
	requests chan *protocol.GetFile
	conns    chan net.Connection
}

func newFakeHost(t *testing.T, trans net.Transport, files map[string]string, silent bool) *fakeHost {
	identity, err := trans.NewIdentity(context.Background(), "host")
	require.NoError(t, err)
	t.Cleanup(func() { identity.Close() })

	h := &fakeHost{
		identity: identity,
		files:    files,
		silent:   silent,
		requests: make(chan *protocol.GetFile, 16),
		conns:    make(chan net.Connection, 16),
	}

	go func() {
		for conn := range identity.Accept() {
			h.conns <- conn
			go h.serve(conn)
		}
	}()

	return h
}

func (h *fakeHost) send(conn net.Connection, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		panic(err)
	}
	conn.Send(data)
}

func (h *fakeHost) serve(conn net.Connection) {
	for ev := range conn.Events() {
		switch ev.Kind {
		case net.EventOpen:
			h.send(conn, &protocol.GraphSync{Snapshot: protocol.GraphSnapshot{
				Version:    protocol.SnapshotVersion,
				Entities:   map[string]graph.Entity{"a": {"id": "a", "title": "A"}},
				SharedMode: true,
			}})
		case net.EventData:
			msg, err := protocol.Decode(ev.Data)
			if err != nil {
				continue
			}
			req, ok := msg.(*protocol.GetFile)
			if !ok {
				continue
			}
			h.requests <- req
			if h.silent {
				continue
			}
			data, found := h.files[req.Path]
			resp := &protocol.FileResponse{RequestID: req.RequestID, Found: found}
			if found {
				resp.MIME = "text/plain"
				resp.Data = []byte(data)
			}
			h.send(conn, resp)
		}
	}
}

// spyTransport counts dials. It can hold dials until released, and hand out
// connections that never open.
type spyTransport struct {
	net.Transport
	dials   int32
	entered chan struct{}
	gate    chan struct{}
	stuck   bool
}

func (s *spyTransport) NewIdentity(ctx context.Context, id string) (net.Identity, error) {
	identity, err := s.Transport.NewIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	return &spyIdentity{Identity: identity, spy: s}, nil
}

type spyIdentity struct {
	net.Identity
	spy *spyTransport
}

func (i *spyIdentity) Connect(remoteID string) (net.Connection, error) {
	atomic.AddInt32(&i.spy.dials, 1)
	if i.spy.entered != nil {
		select {
		case i.spy.entered <- struct{}{}:
		default:
		}
	}
	if i.spy.gate != nil {
		<-i.spy.gate
	}
	if i.spy.stuck {
		return newStuckConn(remoteID), nil
	}
	return i.Identity.Connect(remoteID)
}

// stuckConn never opens.
type stuckConn struct {
	remoteID string
	once     sync.Once
	closed   chan struct{}
	events   chan net.Event
}

func newStuckConn(remoteID string) *stuckConn {
	return &stuckConn{
		remoteID: remoteID,
		closed:   make(chan struct{}),
		events:   make(chan net.Event),
	}
}

func (c *stuckConn) RemoteID() string         { return c.remoteID }
func (c *stuckConn) IsOpen() bool             { return false }
func (c *stuckConn) Send(data []byte) error   { return net.ErrConnectionNotOpen }
func (c *stuckConn) Events() <-chan net.Event { return c.events }
func (c *stuckConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		close(c.events)
	})
	return nil
}

func newTestGuest(t *testing.T, trans net.Transport, conf Config) *Guest {
	g := NewGuest(conf, trans, common.NewTestEntry(t, common.TestLogLevel))
	t.Cleanup(func() { g.Disconnect() })
	return g
}

func TestConnectToHost(t *testing.T) {
	spy := &spyTransport{Transport: net.NewInmemTransport()}
	newFakeHost(t, spy.Transport, nil, false)

	g := newTestGuest(t, spy, Config{PeerID: "guest"})
	assert.Equal(t, Idle, g.State())

	snapshots := make(chan protocol.GraphSnapshot, 1)
	consumer := ConsumerFuncs{
		OnSnapshot: func(s protocol.GraphSnapshot) { snapshots <- s },
	}

	require.NoError(t, g.ConnectToHost(context.Background(), "host", consumer))
	assert.Equal(t, Open, g.State())
	assert.Equal(t, "host", g.HostID())
	assert.Equal(t, "guest", g.PeerID())

	select {
	case s := <-snapshots:
		assert.Equal(t, 1, s.Version)
		assert.True(t, s.SharedMode)
		assert.Equal(t, "A", s.Entities["a"]["title"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}

	// already connected to the same host
	require.NoError(t, g.ConnectToHost(context.Background(), "host", consumer))
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.dials))
}

func TestConnectTimeout(t *testing.T) {
	spy := &spyTransport{Transport: net.NewInmemTransport(), stuck: true}

	g := newTestGuest(t, spy, Config{ConnectTimeout: 100 * time.Millisecond})

	err := g.ConnectToHost(context.Background(), "host", nil)
	assert.Equal(t, protocol.ErrConnectionTimeout, err)
	assert.Equal(t, "Connection timed out", err.Error())
	assert.Equal(t, Closed, g.State())

	// Closed may re-enter Connecting
	err = g.ConnectToHost(context.Background(), "host", nil)
	assert.Equal(t, protocol.ErrConnectionTimeout, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&spy.dials))
}

func TestConnectUnknownHost(t *testing.T) {
	g := newTestGuest(t, net.NewInmemTransport(), Config{})

	err := g.ConnectToHost(context.Background(), "nobody", nil)
	assert.Error(t, err)
	assert.Equal(t, Closed, g.State())
}

func TestConcurrentConnectSingleDial(t *testing.T) {
	spy := &spyTransport{
		Transport: net.NewInmemTransport(),
		entered:   make(chan struct{}, 1),
		gate:      make(chan struct{}),
	}
	newFakeHost(t, spy.Transport, nil, false)

	g := newTestGuest(t, spy, Config{})

	errs := make(chan error, 2)
	go func() {
		errs <- g.ConnectToHost(context.Background(), "host", nil)
	}()

	<-spy.entered
	assert.Equal(t, Connecting, g.State())

	go func() {
		errs <- g.ConnectToHost(context.Background(), "host", nil)
	}()

	// a handshake with another host is refused while this one runs
	err := g.ConnectToHost(context.Background(), "other", nil)
	assert.Equal(t, ErrHandshakeInProgress, err)

	time.Sleep(50 * time.Millisecond)
	close(spy.gate)

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for ConnectToHost")
		}
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.dials))
	assert.Equal(t, Open, g.State())
}

func TestFetchFileNotConnected(t *testing.T) {
	g := newTestGuest(t, net.NewInmemTransport(), Config{})

	_, err := g.FetchFile(context.Background(), "notes.md")
	assert.Equal(t, protocol.ErrNotConnected, err)
	assert.Equal(t, "Not connected to host", err.Error())
}

func TestFetchFile(t *testing.T) {
	trans := net.NewInmemTransport()
	newFakeHost(t, trans, map[string]string{"notes.md": "hello"}, false)

	g := newTestGuest(t, trans, Config{})
	require.NoError(t, g.ConnectToHost(context.Background(), "host", nil))

	f, err := g.FetchFile(context.Background(), "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "notes.md", f.Path)
	assert.Equal(t, "text/plain", f.MIME)
	assert.Equal(t, []byte("hello"), f.Data)

	_, err = g.FetchFile(context.Background(), "missing.md")
	assert.Equal(t, protocol.ErrFileNotFound, err)
	assert.Equal(t, "File not found on host", err.Error())

	assert.Equal(t, 0, g.pending.len())
}

func TestFetchFileTimeout(t *testing.T) {
	trans := net.NewInmemTransport()
	host := newFakeHost(t, trans, map[string]string{"notes.md": "hello"}, true)

	g := newTestGuest(t, trans, Config{RequestTimeout: 100 * time.Millisecond})
	require.NoError(t, g.ConnectToHost(context.Background(), "host", nil))

	_, err := g.FetchFile(context.Background(), "notes.md")
	assert.Equal(t, protocol.ErrRequestTimeout, err)
	assert.Equal(t, "Request timeout", err.Error())
	assert.Equal(t, 0, g.pending.len())

	// a late response is ignored
	req := <-host.requests
	conn := <-host.conns
	host.send(conn, &protocol.FileResponse{RequestID: req.RequestID, Found: true, Data: []byte("late")})

	assert.False(t, g.pending.resolve(&protocol.FileResponse{RequestID: req.RequestID}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, g.pending.len())
	assert.Equal(t, Open, g.State())
}

func TestDisconnectRejectsPending(t *testing.T) {
	trans := net.NewInmemTransport()
	host := newFakeHost(t, trans, nil, true)

	g := newTestGuest(t, trans, Config{RequestTimeout: time.Minute})
	require.NoError(t, g.ConnectToHost(context.Background(), "host", nil))

	errs := make(chan error, 1)
	go func() {
		_, err := g.FetchFile(context.Background(), "notes.md")
		errs <- err
	}()

	<-host.requests
	require.NoError(t, g.Disconnect())

	select {
	case err := <-errs:
		assert.Equal(t, protocol.ErrNotConnected, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for FetchFile")
	}

	assert.Equal(t, Closed, g.State())
	assert.Equal(t, 0, g.pending.len())

	// Disconnect is safe to call again
	require.NoError(t, g.Disconnect())
}

func TestRemoteClose(t *testing.T) {
	trans := net.NewInmemTransport()
	host := newFakeHost(t, trans, nil, false)

	g := newTestGuest(t, trans, Config{})
	require.NoError(t, g.ConnectToHost(context.Background(), "host", nil))

	conn := <-host.conns
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return g.State() == Closed
	}, 2*time.Second, 10*time.Millisecond)

	_, err := g.FetchFile(context.Background(), "notes.md")
	assert.Equal(t, protocol.ErrNotConnected, err)

	// reconnecting reuses the identity
	require.NoError(t, g.ConnectToHost(context.Background(), "host", nil))
	assert.Equal(t, Open, g.State())
}
