// Package keys implements the key-pairs that give graphshare peers their
// identity.
//
// A peer that wants a stable address, typically a host that guests bookmark,
// owns an ECDSA key-pair on the secp256k1 curve. The hexadecimal form of the
// compressed public key is the peer id under which the peer registers with
// the signaling system. Peers without a key file are given a fresh key, and
// therefore a fresh id, every time they start.
package keys
