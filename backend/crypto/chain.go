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

package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	chacha "golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	chainInfo   = "efepoch/v1 chain link"
	confirmInfo = "efepoch/v1 confirm"
)

// chainKey derives the symmetric key that seals epoch n-1's private key
// under epoch n's private key.
func chainKey(privateKey []byte, epoch int) ([]byte, error) {
	info := make([]byte, len(chainInfo)+8)
	copy(info, chainInfo)
	binary.BigEndian.PutUint64(info[len(chainInfo):], uint64(epoch))
	hk := hkdf.New(sha256.New, privateKey, nil, info)
	key := make([]byte, chacha.KeySize)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewChainLink lets the holder of (epoch, privateKey) recover previousKey.
func NewChainLink(privateKey []byte, epoch int, previousKey []byte) ([]byte, error) {
	if IsPlaceholder(privateKey) || IsPlaceholder(previousKey) {
		return nil, ErrChainLink.WithDetails("placeholder key")
	}
	key, err := chainKey(privateKey, epoch)
	if err != nil {
		return nil, ErrChainLink.WithDetails(err.Error())
	}
	aead, err := chacha.NewX(key)
	if err != nil {
		return nil, ErrChainLink.WithDetails(err.Error())
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(previousKey)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, ErrChainLink.WithDetails(err.Error())
	}
	return aead.Seal(nonce, nonce, previousKey, nil), nil
}

// FollowChainLink derives epoch-1's private key from epoch's private key and link.
func FollowChainLink(privateKey []byte, epoch int, link []byte) ([]byte, error) {
	key, err := chainKey(privateKey, epoch)
	if err != nil {
		return nil, ErrChainLink.WithDetails(err.Error())
	}
	aead, err := chacha.NewX(key)
	if err != nil {
		return nil, ErrChainLink.WithDetails(err.Error())
	}
	if len(link) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformedInput
	}
	prev, err := aead.Open(nil, link[:aead.NonceSize()], link[aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrChainLink.WithDetails(err.Error())
	}
	if len(prev) != PrivateKeySize {
		return nil, ErrChainLink.WithDetails("derived key has wrong length")
	}
	return prev, nil
}

// ConfirmationHash fingerprints an epoch's keying material. It is keyed by
// the private key, so the server can store it without learning anything.
func ConfirmationHash(epoch int, publicKey, privateKey []byte) []byte {
	mac := hmac.New(sha256.New, privateKey)
	mac.Write([]byte(confirmInfo))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(epoch))
	mac.Write(n[:])
	mac.Write(publicKey)
	return mac.Sum(nil)
}

// VerifyConfirmation recomputes the hash from the private key alone.
func VerifyConfirmation(epoch int, privateKey, hash []byte) bool {
	pub, err := PublicKeyOf(privateKey)
	if err != nil {
		return false
	}
	return hmac.Equal(ConfirmationHash(epoch, pub, privateKey), hash)
}
