// Package keyagree performs the one-shot elliptic-curve key agreement used
// by the pairing handshake.
//
// Keys travel as base64 (standard alphabet) encodings of uncompressed P-256
// points, 65 bytes: 0x04 || X || Y.
package keyagree

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedKey is returned when a foreign public key cannot be decoded or
// is not a point on the expected curve.
var ErrMalformedKey = errors.New("malformed public key")

// KeyPair is an ephemeral P-256 key pair. A KeyPair is meant to derive a
// single shared secret and then be discarded.
type KeyPair struct {
	private *ecdh.PrivateKey
}

// Generate creates a fresh P-256 key pair.
func Generate() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate P-256 key: %w", err)
	}
	return &KeyPair{private: priv}, nil
}

// PublicKey returns the base64 encoded uncompressed public point.
func (kp *KeyPair) PublicKey() string {
	return base64.StdEncoding.EncodeToString(kp.private.PublicKey().Bytes())
}

// SharedSecret computes the ECDH shared secret against a base64 encoded
// foreign public key. Any decoding or curve failure wraps ErrMalformedKey.
func (kp *KeyPair) SharedSecret(foreign string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(foreign)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformedKey, err)
	}
	peer, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid EC point: %v", ErrMalformedKey, err)
	}
	secret, err := kp.private.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: ECDH failed: %v", ErrMalformedKey, err)
	}
	return secret, nil
}
