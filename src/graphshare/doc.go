// Package graphshare composes the components of a graphshare peer into a
// session engine.
//
// A Graphshare is built from a config.Config. Init loads or creates the key of
// the peer and builds the transport (in-memory, or WebRTC with a WAMP or file
// signal), the graph store, the content root (a directory, or a badger
// database imported from it), the host and guest coordinators, and the HTTP
// service. RunHost then shares the store with guests, while RunGuest mirrors
// the graph of a remote host into it.
package graphshare
