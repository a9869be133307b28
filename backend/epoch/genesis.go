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

package epoch

import (
	"github.com/efchatnet/efepoch/backend/crypto"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
)

// Genesis is a prepared conversation at epoch 1.
type Genesis struct {
	PrivateKey []byte
	Request    models.CreateConversationRequest
}

// BuildGenesis creates the first epoch keypair, wraps it to the founder and
// seals the title and first message under it.
func BuildGenesis(founderPublicKey []byte, title, firstMessage string, senderType models.SenderType) (*Genesis, error) {
	if err := crypto.ValidatePublicKey(founderPublicKey); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid founder public key", err)
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, apperrors.CryptoFailure("generate epoch key", err)
	}
	wrap, err := crypto.WrapKey(founderPublicKey, kp.PrivateKey)
	if err != nil {
		return nil, apperrors.CryptoFailure("wrap for founder", err)
	}
	sealedTitle, err := crypto.EncryptTitle(kp.PublicKey, title)
	if err != nil {
		return nil, apperrors.CryptoFailure("encrypt title", err)
	}
	sealedMessage, err := crypto.EncryptMessage(kp.PublicKey, firstMessage)
	if err != nil {
		return nil, apperrors.CryptoFailure("encrypt message", err)
	}

	return &Genesis{
		PrivateKey: kp.PrivateKey,
		Request: models.CreateConversationRequest{
			FounderPublicKey: founderPublicKey,
			EpochPublicKey:   kp.PublicKey,
			ConfirmationHash: crypto.ConfirmationHash(1, kp.PublicKey, kp.PrivateKey),
			FounderWrap:      wrap,
			EncryptedTitle:   sealedTitle,
			FirstMessage: models.SendMessageRequest{
				EpochNumber: 1,
				SenderType:  senderType,
				Ciphertext:  sealedMessage,
			},
		},
	}, nil
}
