// Package net implements the transports that connect graphshare peers.
//
// A Transport creates Identities. An Identity is a peer registered under an
// opaque id: it can dial other identities and accept the connections they dial.
// A Connection is an ordered, reliable, message-oriented channel between two
// identities. Its lifecycle is reported through Events: Open, then any number
// of Data events, possibly an Error, and finally Close, after which the event
// channel is closed.
//
// There are two implementations:
//
// - Inmem: identities registered in a shared in-memory registry. It is used in
// tests and when host and guests live in the same process.
//
// - WebRTC: each connection is a WebRTC PeerConnection carrying a single
// DataChannel.
//
// WebRTC
//
// Because graphshare is a peer-to-peer application, it can run into issues with
// NATs and firewalls. The WebRTC transport addresses the NAT traversal issue,
// but it requires a signaling mechanism for peers to exchange connection
// information, and STUN/TURN services. Signaling is abstracted by the Signal
// interface of the signal package. The signaling server is only used as a sort
// of peer-discovery mechanism; once a connection is established, all the data
// flows directly between the peers.
//
// DataChannel messages are limited in size, so the WebRTC connection splits
// larger messages into fragments and reassembles them on the other side.
package net
