package net

import (
	"context"
	"fmt"
	"sync"

	"github.com/mosaicnetworks/graphshare/src/crypto/keys"
	"github.com/mosaicnetworks/graphshare/src/net/signal"
	webrtc "github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
)

// DefaultICEServers is used when a WebRTCTransport is created without ICE
// servers. It points to a public Google STUN server.
var DefaultICEServers = []webrtc.ICEServer{
	{
		URLs: []string{"stun:stun.l.google.com:19302"},
	},
}

// SignalFactory creates the Signal through which an identity exchanges SDP
// offers and answers.
type SignalFactory func(id string) (signal.Signal, error)

// WebRTCTransport implements the Transport interface with WebRTC
// PeerConnections. Every Connection is a PeerConnection carrying a single
// DataChannel labelled "data".
type WebRTCTransport struct {
	newSignal      SignalFactory
	iceServers     []webrtc.ICEServer
	maxMessageSize int
	logger         *logrus.Entry
}

// NewWebRTCTransport creates a WebRTCTransport. maxMessageSize bounds the size
// of reassembled inbound messages, and of outbound messages; 0 means no limit.
func NewWebRTCTransport(newSignal SignalFactory,
	iceServers []webrtc.ICEServer,
	maxMessageSize int,
	logger *logrus.Entry) *WebRTCTransport {

	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}

	return &WebRTCTransport{
		newSignal:      newSignal,
		iceServers:     iceServers,
		maxMessageSize: maxMessageSize,
		logger:         logger,
	}
}

// NewIdentity implements the Transport interface. An empty id is replaced with
// the id of a freshly generated key. It returns once the signal accepts offers
// for the identity.
func (t *WebRTCTransport) NewIdentity(ctx context.Context, id string) (Identity, error) {
	if id == "" {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			return nil, err
		}
		id = keys.PeerID(key)
	}

	sig, err := t.newSignal(id)
	if err != nil {
		return nil, err
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- sig.Listen()
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			sig.Close()
			return nil, fmt.Errorf("signal listen: %w", err)
		}
	case <-ctx.Done():
		sig.Close()
		return nil, ctx.Err()
	}

	identity := &webrtcIdentity{
		id:        id,
		transport: t,
		signal:    sig,
		inbound:   make(chan Connection, 16),
		conns:     make(map[*webrtcConn]struct{}),
		done:      make(chan struct{}),
		logger:    t.logger.WithField("id", id),
	}

	go identity.processOffers()

	return identity, nil
}

// newPeerConnection creates a PeerConnection for conn. The createDataChannel
// parameter determines whether a new DataChannel is created for the
// PeerConnection or if we just bind to its OnDataChannel handler. Basically,
// set it to true when actively creating a PeerConnection (you are making the
// offer) and vice-versa.
func (t *WebRTCTransport) newPeerConnection(conn *webrtcConn, createDataChannel bool) (*webrtc.PeerConnection, error) {
	// Create a SettingEngine and enable Detach
	s := webrtc.SettingEngine{}
	s.DetachDataChannels()

	// Create an API object with the engine
	api := webrtc.NewAPI(webrtc.WithSettingEngine(s))

	config := webrtc.Configuration{
		ICEServers: t.iceServers,
	}

	peerConnection, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}

	// This will notify us when the peer has connected/disconnected
	peerConnection.OnICEConnectionStateChange(func(connectionState webrtc.ICEConnectionState) {
		conn.logger.WithField("state", connectionState.String()).Debug("ICE Connection State has changed")

		switch connectionState {
		case webrtc.ICEConnectionStateFailed:
			conn.fail(fmt.Errorf("ICE connection failed"))
		case webrtc.ICEConnectionStateClosed:
			conn.Close()
		}
	})

	if createDataChannel {
		dataChannel, err := peerConnection.CreateDataChannel("data", nil)
		if err != nil {
			peerConnection.Close()
			return nil, err
		}
		conn.attach(dataChannel)
	} else {
		peerConnection.OnDataChannel(func(d *webrtc.DataChannel) {
			conn.attach(d)
		})
	}

	conn.mu.Lock()
	conn.pc = peerConnection
	conn.mu.Unlock()

	return peerConnection, nil
}

type webrtcIdentity struct {
	sync.Mutex
	id        string
	transport *WebRTCTransport
	signal    signal.Signal
	inbound   chan Connection
	conns     map[*webrtcConn]struct{}
	closed    bool
	done      chan struct{}
	logger    *logrus.Entry
}

// ID implements the Identity interface.
func (i *webrtcIdentity) ID() string {
	return i.id
}

// Accept implements the Identity interface.
func (i *webrtcIdentity) Accept() <-chan Connection {
	return i.inbound
}

// Connect implements the Identity interface. The PeerConnection is created
// synchronously; the SDP exchange and ICE negotiation happen in the
// background.
func (i *webrtcIdentity) Connect(remoteID string) (Connection, error) {
	conn := newWebRTCConn(i, remoteID, i.transport.maxMessageSize, i.logger)

	if !i.track(conn) {
		return nil, ErrIdentityClosed
	}

	pc, err := i.transport.newPeerConnection(conn, true)
	if err != nil {
		i.untrack(conn)
		return nil, err
	}

	go i.negotiate(conn, pc, remoteID)

	return conn, nil
}

func (i *webrtcIdentity) negotiate(conn *webrtcConn, pc *webrtc.PeerConnection, remoteID string) {
	// Create an offer to send to the signaling system
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		conn.fail(err)
		return
	}

	// Sets the LocalDescription, and starts our UDP listeners
	if err := pc.SetLocalDescription(offer); err != nil {
		conn.fail(err)
		return
	}

	// synchronous offer/answer RPC request through signal to exchange SDP
	// information.
	answer, err := i.signal.Offer(remoteID, offer)
	if err != nil {
		conn.fail(fmt.Errorf("failed to connect to peer: %v: %w", remoteID, err))
		return
	}

	if answer == nil {
		conn.fail(fmt.Errorf("failed to connect to peer: %v: no answer", remoteID))
		return
	}

	// Apply the answer as the remote description
	if err := pc.SetRemoteDescription(*answer); err != nil {
		conn.fail(err)
	}
}

// processOffers receives SDP offers from the Signal, creates corresponding
// PeerConnections and responds.
func (i *webrtcIdentity) processOffers() {
	consumer := i.signal.Consumer()

	for {
		select {
		case <-i.done:
			return
		case promise, ok := <-consumer:
			if !ok {
				return
			}
			i.handleOffer(promise)
		}
	}
}

func (i *webrtcIdentity) handleOffer(promise signal.OfferPromise) {
	i.logger.WithField("from", promise.From).Debug("Processing Offer")

	conn := newWebRTCConn(i, promise.From, i.transport.maxMessageSize, i.logger)

	pc, err := i.transport.newPeerConnection(conn, false)
	if err != nil {
		promise.Respond(nil, err)
		return
	}

	answer, err := i.answer(pc, promise.Offer)
	if err != nil {
		pc.Close()
		promise.Respond(nil, err)
		return
	}

	promise.Respond(answer, nil)

	if !i.deliver(conn) {
		conn.Close()
	}
}

func (i *webrtcIdentity) answer(pc *webrtc.PeerConnection, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	// Sets the LocalDescription, and starts our UDP listeners
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}

	return &answer, nil
}

// deliver hands an inbound connection to the consumer of Accept.
func (i *webrtcIdentity) deliver(c *webrtcConn) bool {
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
		i.logger.WithField("from", c.remoteID).Warn("Inbound queue full, dropping connection")
		return false
	}
}

func (i *webrtcIdentity) track(c *webrtcConn) bool {
	i.Lock()
	defer i.Unlock()
	if i.closed {
		return false
	}
	i.conns[c] = struct{}{}
	return true
}

func (i *webrtcIdentity) untrack(c *webrtcConn) {
	i.Lock()
	defer i.Unlock()
	delete(i.conns, c)
}

// Close implements the Identity interface. It closes the Signal and all the
// connections.
func (i *webrtcIdentity) Close() error {
	i.Lock()
	if i.closed {
		i.Unlock()
		return nil
	}
	i.closed = true
	close(i.done)
	close(i.inbound)
	conns := make([]*webrtcConn, 0, len(i.conns))
	for c := range i.conns {
		conns = append(conns, c)
	}
	i.Unlock()

	for _, c := range conns {
		c.Close()
	}

	return i.signal.Close()
}
