// Package guest implements the guest side of graphshare.
//
// A Guest maintains one connection to a host. It forwards the snapshot and the
// incremental mutations sent by the host to a Consumer, and fetches the assets
// referenced by the graph. Asset requests are correlated with their responses
// by a request id, and each one settles exactly once: with the response, with
// a timeout, or with ErrNotConnected when the connection goes away.
package guest
