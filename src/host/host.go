package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mosaicnetworks/graphshare/src/graph"
	"github.com/mosaicnetworks/graphshare/src/net"
	"github.com/mosaicnetworks/graphshare/src/protocol"
	"github.com/sirupsen/logrus"
)

// Graph is the canonical graph shared by the Host. It is implemented by
// graph.Store.
type Graph interface {
	// View calls fn with a copy of the graph. No mutation hook may fire
	// while fn runs.
	View(fn func(graph.State))
	OnEntityUpdate(fn func(graph.Entity)) func()
	OnEntityDelete(fn func(string)) func()
	OnBatchUpdate(fn func(map[string]graph.Entity)) func()
}

// peer is an active guest connection.
type peer struct {
	conn        net.Connection
	synced      bool
	connectedAt time.Time
}

// Host shares a Graph with guests.
type Host struct {
	// startLock serializes Start and Stop
	startLock sync.Mutex

	mu          sync.Mutex
	peers       map[net.Connection]*peer
	byRemote    map[string]*peer
	identity    net.Identity
	unsubscribe []func()

	id        string
	transport net.Transport
	graph     Graph
	resolver  Resolver

	wg     sync.WaitGroup
	logger *logrus.Entry
}

// NewHost creates a Host that will register under id with the transport, or
// under a self-assigned id if id is empty.
func NewHost(id string,
	transport net.Transport,
	g Graph,
	resolver Resolver,
	logger *logrus.Entry) *Host {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Host{
		peers:     make(map[net.Connection]*peer),
		byRemote:  make(map[string]*peer),
		id:        id,
		transport: transport,
		graph:     g,
		resolver:  resolver,
		logger:    logger.WithField("prefix", "host"),
	}
}

// Start makes the Host dialable and returns its peer id. Calling Start while
// already hosting returns the same id without creating a new identity.
func (h *Host) Start(ctx context.Context) (string, error) {
	h.startLock.Lock()
	defer h.startLock.Unlock()

	h.mu.Lock()
	identity := h.identity
	h.mu.Unlock()

	if identity != nil {
		return identity.ID(), nil
	}

	identity, err := h.transport.NewIdentity(ctx, h.id)
	if err != nil {
		return "", fmt.Errorf("creating host identity: %w", err)
	}

	unsubscribe := []func(){
		h.graph.OnEntityUpdate(h.BroadcastEntityUpdate),
		h.graph.OnEntityDelete(h.BroadcastEntityDelete),
		h.graph.OnBatchUpdate(h.BroadcastBatchUpdate),
	}

	h.mu.Lock()
	h.identity = identity
	h.unsubscribe = unsubscribe
	h.mu.Unlock()

	h.wg.Add(1)
	go h.accept(identity)

	h.logger.WithField("peer_id", identity.ID()).Info("Hosting")

	return identity.ID(), nil
}

// PeerID returns the id guests dial, or the empty string if the Host is not
// hosting.
func (h *Host) PeerID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.identity == nil {
		return ""
	}
	return h.identity.ID()
}

// Hosting reports whether Start succeeded and Stop was not called since.
func (h *Host) Hosting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.identity != nil
}

func (h *Host) accept(identity net.Identity) {
	defer h.wg.Done()
	for conn := range identity.Accept() {
		h.handleConnection(conn)
	}
}

// handleConnection registers an inbound connection and serves it until it
// closes.
func (h *Host) handleConnection(conn net.Connection) {
	p := &peer{
		conn:        conn,
		connectedAt: time.Now(),
	}

	h.mu.Lock()
	stale := h.byRemote[conn.RemoteID()]
	if stale != nil {
		delete(h.peers, stale.conn)
	}
	h.peers[conn] = p
	h.byRemote[conn.RemoteID()] = p
	h.mu.Unlock()

	logger := h.logger.WithField("remote", conn.RemoteID())

	if stale != nil {
		logger.Warn("Guest reconnected, closing stale connection")
		stale.conn.Close()
	}

	logger.Debug("Guest connection")

	h.wg.Add(1)
	go h.serve(p, logger)
}

func (h *Host) serve(p *peer, logger *logrus.Entry) {
	defer h.wg.Done()
	defer h.removePeer(p)

	for ev := range p.conn.Events() {
		switch ev.Kind {
		case net.EventOpen:
			if err := h.sendSnapshot(p); err != nil {
				logger.WithError(err).Error("Sending snapshot")
			}
		case net.EventData:
			h.handleMessage(p, ev.Data, logger)
		case net.EventError:
			logger.WithError(ev.Err).Warn("Guest connection error")
		case net.EventClose:
			logger.Debug("Guest connection closed")
		}
	}
}

// removePeer forgets p unless it has already been replaced.
func (h *Host) removePeer(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.peers[p.conn] == p {
		delete(h.peers, p.conn)
	}
	if h.byRemote[p.conn.RemoteID()] == p {
		delete(h.byRemote, p.conn.RemoteID())
	}
}

// sendSnapshot sends the GraphSync message that seeds a guest.
func (h *Host) sendSnapshot(p *peer) error {
	var err error

	h.graph.View(func(state graph.State) {
		var data []byte
		data, err = protocol.Encode(&protocol.GraphSync{
			Snapshot: PrepareGraphPayload(state),
		})
		if err != nil {
			return
		}

		h.mu.Lock()
		defer h.mu.Unlock()

		if h.peers[p.conn] != p {
			err = fmt.Errorf("connection was removed")
			return
		}

		if err = p.conn.Send(data); err == nil {
			p.synced = true
		}
	})

	return err
}

func (h *Host) handleMessage(p *peer, data []byte, logger *logrus.Entry) {
	msg, err := protocol.Decode(data)
	if err != nil {
		logger.WithError(err).Warn("Decoding guest message")
		return
	}

	switch m := msg.(type) {
	case *protocol.GetFile:
		h.serveFile(p, m, logger)
	default:
		logger.WithField("type", msg.Type()).Warn("Unexpected message from guest")
	}
}

// serveFile resolves a GetFile request and replies with a FileResponse
// carrying the same request id.
func (h *Host) serveFile(p *peer, req *protocol.GetFile, logger *logrus.Entry) {
	logger = logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"path":       req.Path,
	})

	resp := &protocol.FileResponse{
		RequestID: req.RequestID,
	}

	asset, err := h.resolver.Resolve(SplitPath(req.Path))
	switch {
	case err == nil:
		resp.Found = true
		resp.MIME = asset.MIME
		resp.Data = asset.Data
	case errors.Is(err, ErrNotFound):
		logger.Debug("File not found")
	default:
		logger.WithError(err).Error("Resolving file")
	}

	data, err := protocol.Encode(resp)
	if err != nil {
		logger.WithError(err).Error("Encoding file response")
		return
	}

	err = p.conn.Send(data)
	if errors.Is(err, net.ErrMessageTooLarge) && resp.Found {
		logger.WithField("size", humanize.Bytes(uint64(len(resp.Data)))).
			Warn("File too large for the connection")

		// the guest would otherwise wait for its request timeout
		data, err = protocol.Encode(&protocol.FileResponse{RequestID: req.RequestID})
		if err == nil {
			err = p.conn.Send(data)
		}
	}
	if err != nil {
		logger.WithError(err).Warn("Sending file response")
	}
}

// BroadcastEntityUpdate sends an EntityUpdate to every synced guest.
func (h *Host) BroadcastEntityUpdate(e graph.Entity) {
	h.broadcast(func() protocol.Message {
		return &protocol.EntityUpdate{Entity: e.Sanitize()}
	})
}

// BroadcastEntityDelete sends an EntityDelete to every synced guest.
func (h *Host) BroadcastEntityDelete(id string) {
	h.broadcast(func() protocol.Message {
		return &protocol.EntityDelete{ID: id}
	})
}

// BroadcastBatchUpdate sends an EntityBatchUpdate to every synced guest.
func (h *Host) BroadcastBatchUpdate(patches map[string]graph.Entity) {
	h.broadcast(func() protocol.Message {
		updates := make(map[string]graph.Entity, len(patches))
		for id, patch := range patches {
			updates[id] = patch.Sanitize()
		}
		return &protocol.EntityBatchUpdate{Updates: updates}
	})
}

// broadcast builds and encodes a message only if at least one guest will
// receive it. Connections that have not received their snapshot yet are
// skipped.
func (h *Host) broadcast(build func() protocol.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.peers) == 0 {
		return
	}

	targets := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		if p.synced && p.conn.IsOpen() {
			targets = append(targets, p)
		}
	}

	if len(targets) == 0 {
		return
	}

	msg := build()
	data, err := protocol.Encode(msg)
	if err != nil {
		h.logger.WithError(err).WithField("type", msg.Type()).Error("Encoding broadcast")
		return
	}

	for _, p := range targets {
		if err := p.conn.Send(data); err != nil {
			h.logger.WithError(err).WithField("remote", p.conn.RemoteID()).Warn("Broadcast")
		}
	}
}

// Stop unsubscribes from the graph, closes the identity and every guest
// connection. Pending file resolutions are abandoned.
func (h *Host) Stop() error {
	h.startLock.Lock()
	defer h.startLock.Unlock()

	h.mu.Lock()
	identity := h.identity
	unsubscribe := h.unsubscribe
	conns := make([]net.Connection, 0, len(h.peers))
	for conn := range h.peers {
		conns = append(conns, conn)
	}
	h.identity = nil
	h.unsubscribe = nil
	h.peers = make(map[net.Connection]*peer)
	h.byRemote = make(map[string]*peer)
	h.mu.Unlock()

	if identity == nil {
		return nil
	}

	// unsubscribing takes the graph's lock, which hooks hold while waiting
	// for h.mu
	for _, u := range unsubscribe {
		u()
	}

	err := identity.Close()

	for _, conn := range conns {
		conn.Close()
	}

	h.wg.Wait()

	h.logger.Info("Stopped hosting")

	return err
}

// PeerStats describes a guest connection.
type PeerStats struct {
	RemoteID    string    `json:"remote_id"`
	Open        bool      `json:"open"`
	Synced      bool      `json:"synced"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Stats describes the hosting session.
type Stats struct {
	PeerID  string      `json:"peer_id"`
	Hosting bool        `json:"hosting"`
	Peers   []PeerStats `json:"peers"`
}

// Stats returns a description of the hosting session.
func (h *Host) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{
		Peers: make([]PeerStats, 0, len(h.peers)),
	}

	if h.identity != nil {
		s.PeerID = h.identity.ID()
		s.Hosting = true
	}

	for _, p := range h.peers {
		s.Peers = append(s.Peers, PeerStats{
			RemoteID:    p.conn.RemoteID(),
			Open:        p.conn.IsOpen(),
			Synced:      p.synced,
			ConnectedAt: p.connectedAt,
		})
	}

	sort.Slice(s.Peers, func(i, j int) bool {
		return s.Peers[i].ConnectedAt.Before(s.Peers[j].ConnectedAt)
	})

	return s
}
