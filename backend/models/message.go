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

type SenderType string

const (
	SenderUser SenderType = "user"
	SenderAI   SenderType = "ai"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RoleOf maps the stored sender type to the two-valued display role.
func RoleOf(t SenderType) Role {
	if t == SenderAI {
		return RoleAssistant
	}
	return RoleUser
}

// Message is an encrypted message as stored and served.
type Message struct {
	MessageID      string     `json:"message_id" db:"message_id"`
	ConversationID string     `json:"conversation_id" db:"conversation_id"`
	Sequence       int64      `json:"sequence" db:"sequence"`
	EpochNumber    int        `json:"epoch_number" db:"epoch_number"`
	SenderID       string     `json:"sender_id" db:"sender_id"`
	SenderType     SenderType `json:"sender_type" db:"sender_type"`
	Ciphertext     []byte     `json:"ciphertext" db:"ciphertext"`
	Cost           *float64   `json:"cost,omitempty" db:"cost"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

type SendMessageRequest struct {
	EpochNumber int        `json:"epoch_number"`
	SenderType  SenderType `json:"sender_type"`
	Ciphertext  []byte     `json:"ciphertext"`
	Cost        *float64   `json:"cost,omitempty"`
}

// DecryptedMessage is what the decryption pipeline hands to readers.
type DecryptedMessage struct {
	MessageID   string    `json:"message_id"`
	Sequence    int64     `json:"sequence"`
	EpochNumber int       `json:"epoch_number"`
	SenderID    string    `json:"sender_id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Cost        *float64  `json:"cost,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Failed      bool      `json:"failed,omitempty"`
}

// MessageList is one page of history; pass the last Sequence as "after" for the next.
type MessageList struct {
	Messages []Message `json:"messages"`
}
