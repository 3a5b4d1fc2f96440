// Package wamp implements a WebRTC signaling system using RPC over WebSockets.
//
// This package contains a WAMP server that relays RPC requests between
// connected clients, and a client which implements the Signal interface, and
// which can be used by the WebRTC transport.
//
// If the client is given a certificate file, it trusts that certificate.
// Otherwise, it relies on the platform's trusted certificates. This means that
// the signal server's certificate can be self-signed because it can be passed
// directly to the peers. There is also an option to skip certificate
// verification, but this should only be used for testing.
package wamp

const (
	// ErrProcessingOffer indicates that the client who received the offer ran
	// into an error while processing it.
	ErrProcessingOffer = "io.graphshare.processing_offer"
)
