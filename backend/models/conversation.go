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

package models

import (
	"time"
)

// Conversation is the server's view of a conversation. The title is only ever
// stored sealed to the public key of TitleEpoch.
type Conversation struct {
	ConversationID  string    `json:"conversation_id" db:"conversation_id"`
	CurrentEpoch    int       `json:"current_epoch" db:"current_epoch"`
	TitleCiphertext []byte    `json:"title_ciphertext" db:"title_ciphertext"`
	TitleEpoch      int       `json:"title_epoch" db:"title_epoch"`
	CreatedBy       string    `json:"created_by" db:"created_by"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Epoch is one generation of a conversation's keying material. ChainLink is
// nil for epoch 1.
type Epoch struct {
	ConversationID   string    `json:"conversation_id" db:"conversation_id"`
	EpochNumber      int       `json:"epoch_number" db:"epoch_number"`
	PublicKey        []byte    `json:"public_key" db:"public_key"`
	ConfirmationHash []byte    `json:"confirmation_hash" db:"confirmation_hash"`
	ChainLink        []byte    `json:"chain_link,omitempty" db:"chain_link"`
	CreatedBy        string    `json:"created_by" db:"created_by"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// MemberWrap is the epoch private key sealed to one member public key.
type MemberWrap struct {
	ConversationID   string `json:"conversation_id" db:"conversation_id"`
	EpochNumber      int    `json:"epoch_number" db:"epoch_number"`
	MemberPublicKey  []byte `json:"member_public_key" db:"member_public_key"`
	Wrap             []byte `json:"wrap" db:"wrap"`
	VisibleFromEpoch int    `json:"visible_from_epoch" db:"visible_from_epoch"`
}

type CreateConversationRequest struct {
	ConversationID   string             `json:"conversation_id,omitempty"`
	FounderPublicKey []byte             `json:"founder_public_key"`
	EpochPublicKey   []byte             `json:"epoch_public_key"`
	ConfirmationHash []byte             `json:"confirmation_hash"`
	FounderWrap      []byte             `json:"founder_wrap"`
	EncryptedTitle   []byte             `json:"encrypted_title"`
	FirstMessage     SendMessageRequest `json:"first_message"`
}

type CreateConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	FirstMessage *Message      `json:"first_message"`
}
