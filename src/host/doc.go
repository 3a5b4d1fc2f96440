// Package host implements the hosting side of graphshare.
//
// A Host becomes dialable under a peer id, seeds every guest connection with a
// snapshot of the graph, broadcasts the mutations of the graph to the guests
// that already received their snapshot, and serves the assets they request.
//
// Snapshot and broadcasts
//
// The Graph fires its mutation hooks while holding its write lock, and the
// Host reads the snapshot of a new connection under the Graph's read lock. A
// connection is marked synced in the same critical section as the snapshot is
// taken and sent, so every mutation is either included in a guest's snapshot or
// broadcast to it afterwards, never both and never neither.
//
// Reconnecting guests
//
// A new connection from a peer id that already has an active connection
// replaces it: the stale connection is closed and forgotten.
package host
