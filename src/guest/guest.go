package guest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/graphshare/src/net"
	"github.com/mosaicnetworks/graphshare/src/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrHandshakeInProgress is returned by ConnectToHost when a handshake with a
// different host is already running.
var ErrHandshakeInProgress = errors.New("handshake with another host in progress")

const (
	// DefaultConnectTimeout bounds the establishment of a connection.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultRequestTimeout bounds each file request.
	DefaultRequestTimeout = 30 * time.Second
)

// Config configures a Guest.
type Config struct {
	// PeerID is the id of the guest's identity. If empty, the transport
	// assigns one.
	PeerID string

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// File is an asset fetched from the host.
type File struct {
	Path string
	MIME string
	Data []byte
}

// Guest maintains a connection to a host.
type Guest struct {
	state

	conf      Config
	transport net.Transport

	mu         sync.Mutex
	identity   net.Identity
	conn       net.Connection
	hostID     string
	connecting string

	group   singleflight.Group
	pending *pendingTracker

	logger *logrus.Entry
}

// NewGuest creates a Guest. Zero timeouts are replaced with the defaults.
func NewGuest(conf Config, transport net.Transport, logger *logrus.Entry) *Guest {
	if conf.ConnectTimeout <= 0 {
		conf.ConnectTimeout = DefaultConnectTimeout
	}
	if conf.RequestTimeout <= 0 {
		conf.RequestTimeout = DefaultRequestTimeout
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Guest{
		conf:      conf,
		transport: transport,
		pending:   newPendingTracker(),
		logger:    logger.WithField("prefix", "guest"),
	}
}

// State returns the state of the connection to the host.
func (g *Guest) State() State {
	return g.getState()
}

// HostID returns the id of the host the Guest is connected, or connecting, to.
func (g *Guest) HostID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hostID
}

// PeerID returns the id of the guest's identity, or the empty string if it
// has not been created.
func (g *Guest) PeerID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.identity == nil {
		return ""
	}
	return g.identity.ID()
}

// ConnectToHost connects to the host and forwards the messages it sends to
// consumer. It returns once the connection is open; the snapshot follows
// shortly after. It returns immediately if already connected to hostID.
//
// Concurrent calls for the same host share one handshake, and its outcome; the
// consumer of the first call is used. A call for another host fails with
// ErrHandshakeInProgress while a handshake runs. The handshake fails with
// ErrConnectionTimeout if the connection does not open within the connect
// timeout.
func (g *Guest) ConnectToHost(ctx context.Context, hostID string, consumer Consumer) error {
	g.mu.Lock()
	if g.openTo(hostID) {
		g.mu.Unlock()
		return nil
	}
	if g.connecting != "" && g.connecting != hostID {
		g.mu.Unlock()
		return ErrHandshakeInProgress
	}
	g.mu.Unlock()

	if consumer == nil {
		consumer = ConsumerFuncs{}
	}

	ch := g.group.DoChan(hostID, func() (interface{}, error) {
		return nil, g.connect(hostID, consumer)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openTo must be called with g.mu held.
func (g *Guest) openTo(hostID string) bool {
	return g.conn != nil &&
		g.hostID == hostID &&
		g.conn.IsOpen() &&
		g.getState() == Open
}

func (g *Guest) connect(hostID string, consumer Consumer) error {
	g.mu.Lock()
	if g.openTo(hostID) {
		g.mu.Unlock()
		return nil
	}
	if g.connecting != "" && g.connecting != hostID {
		g.mu.Unlock()
		return ErrHandshakeInProgress
	}
	g.connecting = hostID
	previous := g.conn
	g.conn = nil
	g.hostID = hostID
	g.setState(Connecting)
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.connecting == hostID {
			g.connecting = ""
		}
		g.mu.Unlock()
	}()

	// a new snapshot supersedes anything received on a previous connection
	if previous != nil {
		previous.Close()
		g.pending.rejectAll(protocol.ErrNotConnected)
	}

	logger := g.logger.WithField("host", hostID)
	logger.Debug("Connecting to host")

	timer := time.NewTimer(g.conf.ConnectTimeout)
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), g.conf.ConnectTimeout)
	defer cancel()

	identity, err := g.getIdentity(ctx)
	if err != nil {
		g.setState(Closed)
		if errors.Is(err, context.DeadlineExceeded) {
			return protocol.ErrConnectionTimeout
		}
		return fmt.Errorf("creating guest identity: %w", err)
	}

	conn, err := identity.Connect(hostID)
	if err != nil {
		g.setState(Closed)
		return fmt.Errorf("connecting to host: %w", err)
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	opened := make(chan error, 1)
	go g.run(conn, consumer, opened, logger)

	select {
	case err := <-opened:
		if err != nil {
			g.teardown(conn)
			return fmt.Errorf("connecting to host: %w", err)
		}
		logger.Info("Connected to host")
		return nil
	case <-timer.C:
		logger.Warn("Connection timed out")
		g.teardown(conn)
		return protocol.ErrConnectionTimeout
	}
}

// getIdentity creates the identity of the Guest the first time it is needed.
func (g *Guest) getIdentity(ctx context.Context) (net.Identity, error) {
	g.mu.Lock()
	identity := g.identity
	g.mu.Unlock()

	if identity != nil {
		return identity, nil
	}

	identity, err := g.transport.NewIdentity(ctx, g.conf.PeerID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.identity = identity
	g.mu.Unlock()

	return identity, nil
}

// run consumes the events of conn. The outcome of the handshake is reported
// once on opened.
func (g *Guest) run(conn net.Connection, consumer Consumer, opened chan<- error, logger *logrus.Entry) {
	reported := false
	report := func(err error) {
		if !reported {
			reported = true
			opened <- err
		}
	}

	for ev := range conn.Events() {
		switch ev.Kind {
		case net.EventOpen:
			g.mu.Lock()
			if g.conn == conn {
				g.setState(Open)
			}
			g.mu.Unlock()
			report(nil)
		case net.EventData:
			g.dispatch(ev.Data, consumer, logger)
		case net.EventError:
			logger.WithError(ev.Err).Warn("Host connection error")
			report(ev.Err)
		case net.EventClose:
			logger.Debug("Host connection closed")
		}
	}

	report(errors.New("connection closed"))
	g.teardown(conn)
}

// teardown closes conn and, if it is still the current connection, marks the
// Guest as disconnected and rejects the outstanding requests.
func (g *Guest) teardown(conn net.Connection) {
	g.mu.Lock()
	current := g.conn == conn
	if current {
		g.conn = nil
		g.setState(Closed)
	}
	g.mu.Unlock()

	conn.Close()

	if current {
		if n := g.pending.rejectAll(protocol.ErrNotConnected); n > 0 {
			g.logger.WithField("requests", n).Debug("Rejected outstanding requests")
		}
	}
}

func (g *Guest) dispatch(data []byte, consumer Consumer, logger *logrus.Entry) {
	msg, err := protocol.Decode(data)
	if err != nil {
		logger.WithError(err).Warn("Decoding host message")
		return
	}

	switch m := msg.(type) {
	case *protocol.GraphSync:
		consumer.ApplySnapshot(m.Snapshot)
	case *protocol.EntityUpdate:
		consumer.ApplyUpdate(m.Entity)
	case *protocol.EntityDelete:
		consumer.ApplyDelete(m.ID)
	case *protocol.EntityBatchUpdate:
		consumer.ApplyBatchUpdate(m.Updates)
	case *protocol.FileResponse:
		if !g.pending.resolve(m) {
			logger.WithField("request_id", m.RequestID).Debug("Unmatched file response")
		}
	default:
		logger.WithField("type", msg.Type()).Warn("Unexpected message from host")
	}
}

// Disconnect closes the connection and the identity. Outstanding requests
// fail with ErrNotConnected. It is safe to call at any time.
func (g *Guest) Disconnect() error {
	g.mu.Lock()
	conn := g.conn
	identity := g.identity
	g.conn = nil
	g.identity = nil
	g.hostID = ""
	if conn != nil || identity != nil {
		g.setState(Closed)
	}
	g.mu.Unlock()

	g.pending.rejectAll(protocol.ErrNotConnected)

	if conn != nil {
		conn.Close()
	}

	if identity != nil {
		return identity.Close()
	}

	return nil
}

// FetchFile requests the asset at path from the host. It fails immediately
// with ErrNotConnected if the Guest is not connected, with ErrRequestTimeout if
// the host does not respond within the request timeout, and with
// ErrFileNotFound if the host has no such asset.
func (g *Guest) FetchFile(ctx context.Context, path string) (*File, error) {
	g.mu.Lock()
	conn := g.conn
	open := conn != nil && conn.IsOpen() && g.getState() == Open
	g.mu.Unlock()

	if !open {
		return nil, protocol.ErrNotConnected
	}

	id := uuid.New().String()

	data, err := protocol.Encode(&protocol.GetFile{
		RequestID: id,
		Path:      path,
	})
	if err != nil {
		return nil, err
	}

	ch := g.pending.add(id, g.conf.RequestTimeout)

	if err := conn.Send(data); err != nil {
		g.pending.settle(id, result{err: err})
		return nil, fmt.Errorf("%w: %v", protocol.ErrNotConnected, err)
	}

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		g.pending.settle(id, result{err: ctx.Err()})
		return nil, ctx.Err()
	}

	if res.err != nil {
		return nil, res.err
	}

	if !res.resp.Found {
		return nil, protocol.ErrFileNotFound
	}

	return &File{
		Path: path,
		MIME: res.resp.MIME,
		Data: res.resp.Data,
	}, nil
}

// Stats describes the connection of a Guest.
type Stats struct {
	PeerID        string `json:"peer_id"`
	HostID        string `json:"host_id"`
	State         string `json:"state"`
	Pending       int    `json:"pending_requests"`
	OldestPending string `json:"oldest_pending,omitempty"`
}

// Stats returns a description of the connection of the Guest.
func (g *Guest) Stats() Stats {
	s := Stats{
		PeerID:  g.PeerID(),
		HostID:  g.HostID(),
		State:   g.State().String(),
		Pending: g.pending.len(),
	}
	if age := g.pending.oldest(); age > 0 {
		s.OldestPending = age.Round(time.Millisecond).String()
	}
	return s
}
