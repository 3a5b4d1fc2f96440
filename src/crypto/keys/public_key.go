package keys

import (
	"crypto/ecdsa"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec"
)

// FromPublicKey returns the compressed form of the public key (33 bytes on
// secp256k1).
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return (*btcec.PublicKey)(pub).SerializeCompressed()
}

// ToPublicKey parses a compressed or uncompressed public key.
func ToPublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	key, err := btcec.ParsePubKey(pub, btcec.S256())
	if err != nil {
		return nil, err
	}
	return key.ToECDSA(), nil
}

// PublicKeyHex returns the hexadecimal representation of the compressed form of
// the public key. It is used as the peer id.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return hex.EncodeToString(FromPublicKey(pub))
}

// PeerID is a shorthand for PublicKeyHex(&key.PublicKey).
func PeerID(key *ecdsa.PrivateKey) string {
	return PublicKeyHex(&key.PublicKey)
}
