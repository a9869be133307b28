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

package storage

import (
	"context"

	"github.com/efchatnet/efepoch/backend/models"
)

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks github.com/efchatnet/efepoch/backend/storage RotationFeed,Store

// Every read below is answered for a requester. Unknown conversations,
// unknown memberships and revoked memberships all yield errors.ErrNotFound.

type ConversationStore interface {
	// CreateConversation creates the conversation at epoch 1 together with its
	// owner membership, founder wrap and first message, atomically.
	CreateConversation(ctx context.Context, founderID string, req models.CreateConversationRequest) (*models.Conversation, *models.Message, error)
	GetConversation(ctx context.Context, conversationID, requesterID string) (*models.Conversation, error)
}

type MembershipStore interface {
	AddMember(ctx context.Context, conversationID, actorID string, req models.AddMemberRequest) (*models.Membership, error)
	RemoveMember(ctx context.Context, conversationID, actorID, memberID string) error
	ChangePrivilege(ctx context.Context, conversationID, actorID, memberID string, privilege models.Privilege) error
	AcceptMembership(ctx context.Context, conversationID, memberID string) error

	CreateLink(ctx context.Context, conversationID, actorID string, req models.CreateLinkRequest) (*models.Membership, error)
	RevokeLink(ctx context.Context, conversationID, actorID, linkID string) error

	GetMemberKeys(ctx context.Context, conversationID, requesterID string) ([]models.MemberKey, error)
}

type EpochStore interface {
	GetKeyChain(ctx context.Context, conversationID, requesterID string) (*models.KeyChainResponse, error)
	// SubmitRotation applies the rotation only if req.ExpectedEpoch is still
	// current, returning errors.ErrStaleEpoch otherwise. Nothing is written
	// on any error.
	SubmitRotation(ctx context.Context, conversationID, requesterID string, req models.RotationRequest) (*models.RotationResult, error)
}

// DefaultMessageLimit applies when GetMessages is called without a limit.
const DefaultMessageLimit = 100

type MessageStore interface {
	SaveMessage(ctx context.Context, conversationID, senderID string, req models.SendMessageRequest) (*models.Message, error)
	GetMessages(ctx context.Context, conversationID, requesterID string, afterSequence int64, limit int) ([]models.Message, error)
}

// RotationFeed fans out committed rotations to interested readers.
type RotationFeed interface {
	PublishRotation(ctx context.Context, event models.RotationEvent) error
	SubscribeRotations(ctx context.Context, conversationID string) (<-chan models.RotationEvent, func(), error)
}

type Store interface {
	ConversationStore
	MembershipStore
	EpochStore
	MessageStore
}
