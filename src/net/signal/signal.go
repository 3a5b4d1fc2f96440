// Package signal defines how WebRTC peers exchange the SDP offers and answers
// that establish their connections.
package signal

import "github.com/pion/webrtc/v2"

// Signal defines an interface for systems to exchange SDP offers and answers
// to establish WebRTC PeerConnections
type Signal interface {
	// ID returns the id used to identify this end of a connection
	ID() string

	// Listen starts listening for incoming SDP offers and forwarding them to
	// the Consumer channel. It returns once the signal is reachable under its
	// ID.
	Listen() error

	// Consumer is the channel through which incoming SDP offers are passed to
	// the transport. SDP offers are wrapped around a promise object which
	// offers a response mechanism.
	Consumer() <-chan OfferPromise

	// Offer sends an SDP offer and waits for an answer
	Offer(target string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)

	// Close stops listening and releases the resources of the signal
	Close() error
}
