// Package graph implements the in-memory knowledge graph that a host shares
// with its guests.
//
// The Store holds entities keyed by id. It is the canonical graph on a host,
// where the local application mutates it and the host coordinator listens to
// its mutation hooks, and the local mirror on a guest, where inbound messages
// are applied to it.
//
// Entities are opaque records. Apart from their "id" field, the store does not
// interpret them. Some fields only make sense inside the process that created
// them, like open file handles; see Sanitize.
package graph
