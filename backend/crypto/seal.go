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
	"crypto/rand"
)

// Seal encrypts plaintext to a public key. The output is the HPKE
// encapsulated key followed by the AEAD ciphertext. The context string is
// bound as HPKE info so a wrap cannot be replayed as a message or title.
func Seal(publicKey, plaintext []byte, context string) ([]byte, error) {
	pk, err := parsePublic(publicKey)
	if err != nil {
		return nil, err
	}
	sender, err := suite.NewSender(pk, []byte(context))
	if err != nil {
		return nil, ErrSealFailed.WithDetails(err.Error())
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, ErrSealFailed.WithDetails(err.Error())
	}
	ct, err := sealer.Seal(plaintext, nil)
	if err != nil {
		return nil, ErrSealFailed.WithDetails(err.Error())
	}
	out := make([]byte, 0, len(enc)+len(ct))
	out = append(out, enc...)
	return append(out, ct...), nil
}

// Open reverses Seal with the matching private key.
func Open(privateKey, sealed []byte, context string) ([]byte, error) {
	sk, err := parsePrivate(privateKey)
	if err != nil {
		return nil, err
	}
	encSize := scheme.CiphertextSize()
	if len(sealed) <= encSize {
		return nil, ErrMalformedInput
	}
	receiver, err := suite.NewReceiver(sk, []byte(context))
	if err != nil {
		return nil, ErrOpenFailed.WithDetails(err.Error())
	}
	opener, err := receiver.Setup(sealed[:encSize])
	if err != nil {
		return nil, ErrOpenFailed.WithDetails(err.Error())
	}
	pt, err := opener.Open(sealed[encSize:], nil)
	if err != nil {
		return nil, ErrOpenFailed.WithDetails(err.Error())
	}
	return pt, nil
}

// Contexts for the three things sealed to an epoch or member key.
const (
	ContextWrap    = "efepoch/v1 wrap"
	ContextTitle   = "efepoch/v1 title"
	ContextMessage = "efepoch/v1 message"
)

// WrapKey seals an epoch private key to a member public key.
func WrapKey(memberPublicKey, epochPrivateKey []byte) ([]byte, error) {
	return Seal(memberPublicKey, epochPrivateKey, ContextWrap)
}

// UnwrapKey recovers an epoch private key from a wrap.
func UnwrapKey(memberPrivateKey, wrap []byte) ([]byte, error) {
	key, err := Open(memberPrivateKey, wrap, ContextWrap)
	if err != nil {
		return nil, err
	}
	if len(key) != PrivateKeySize {
		return nil, ErrBadKey.WithDetails("unwrapped key has wrong length")
	}
	return key, nil
}

func EncryptMessage(epochPublicKey []byte, plaintext string) ([]byte, error) {
	return Seal(epochPublicKey, []byte(plaintext), ContextMessage)
}

func DecryptMessage(epochPrivateKey, ciphertext []byte) (string, error) {
	pt, err := Open(epochPrivateKey, ciphertext, ContextMessage)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func EncryptTitle(epochPublicKey []byte, title string) ([]byte, error) {
	return Seal(epochPublicKey, []byte(title), ContextTitle)
}

func DecryptTitle(epochPrivateKey, ciphertext []byte) (string, error) {
	pt, err := Open(epochPrivateKey, ciphertext, ContextTitle)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
