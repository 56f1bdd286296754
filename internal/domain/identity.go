package domain

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// IdentitySize is the length of a player identity in bytes.
const IdentitySize = ed25519.PublicKeySize

// Identity is a player's ed25519 public key.
type Identity [IdentitySize]byte

// ParseIdentity decodes the unpadded base64url form produced by String.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(raw) != IdentitySize {
		return id, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIdentity, IdentitySize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// IdentityFromPublicKey converts an ed25519 public key.
func IdentityFromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != IdentitySize {
		return id, ErrInvalidIdentity
	}
	copy(id[:], pub)
	return id, nil
}

func (id Identity) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// PublicKey returns the identity as an ed25519 verification key.
func (id Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
