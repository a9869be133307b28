// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package crypto holds the key primitives the epoch machinery treats as a
// black box: X25519 keypairs, sealing to a public key, chain-link derivation
// and confirmation hashes.
package crypto

import (
	"bytes"
	"crypto/subtle"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
)

const (
	// PrivateKeySize and PublicKeySize are the X25519 sizes.
	PrivateKeySize = 32
	PublicKeySize  = 32
)

var (
	kemID  = hpke.KEM_X25519_HKDF_SHA256
	scheme = kemID.Scheme()
	suite  = hpke.NewSuite(kemID, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305)
)

// KeyPair is a marshalled X25519 keypair.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

func GenerateKeyPair() (*KeyPair, error) {
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, ErrKeyGeneration.WithDetails(err.Error())
	}
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, ErrKeyGeneration.WithDetails(err.Error())
	}
	priv, err := sk.MarshalBinary()
	if err != nil {
		return nil, ErrKeyGeneration.WithDetails(err.Error())
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// PublicKeyOf recomputes the public half of a marshalled private key.
func PublicKeyOf(privateKey []byte) ([]byte, error) {
	sk, err := parsePrivate(privateKey)
	if err != nil {
		return nil, err
	}
	pub, err := sk.Public().MarshalBinary()
	if err != nil {
		return nil, ErrBadKey.WithDetails(err.Error())
	}
	return pub, nil
}

// IsPlaceholder reports whether a key was never actually available: empty,
// or all zero bytes.
func IsPlaceholder(key []byte) bool {
	if len(key) == 0 {
		return true
	}
	zero := make([]byte, len(key))
	return subtle.ConstantTimeCompare(key, zero) == 1
}

// EqualKeys compares two marshalled public keys.
func EqualKeys(a, b []byte) bool {
	return len(a) > 0 && bytes.Equal(a, b)
}

func ValidatePublicKey(key []byte) error {
	_, err := parsePublic(key)
	return err
}

func parsePublic(key []byte) (kem.PublicKey, error) {
	if len(key) != PublicKeySize {
		return nil, ErrBadKey.WithDetails("public key has wrong length")
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(key)
	if err != nil {
		return nil, ErrBadKey.WithDetails(err.Error())
	}
	return pk, nil
}

func parsePrivate(key []byte) (kem.PrivateKey, error) {
	if len(key) != PrivateKeySize || IsPlaceholder(key) {
		return nil, ErrBadKey.WithDetails("private key has wrong length or is a placeholder")
	}
	sk, err := scheme.UnmarshalBinaryPrivateKey(key)
	if err != nil {
		return nil, ErrBadKey.WithDetails(err.Error())
	}
	return sk, nil
}
