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

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

func (s *Store) CreateConversation(ctx context.Context, founderID string, req models.CreateConversationRequest) (*models.Conversation, *models.Message, error) {
	if err := storage.ValidateCreateConversation(founderID, req); err != nil {
		return nil, nil, err
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	now := s.now()
	conv := &models.Conversation{
		ConversationID:  req.ConversationID,
		CurrentEpoch:    1,
		TitleCiphertext: req.EncryptedTitle,
		TitleEpoch:      1,
		CreatedBy:       founderID,
		CreatedAt:       now,
	}

	// Create conversation at epoch 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, current_epoch, title_ciphertext, title_epoch, created_by, created_at)
		VALUES ($1, 1, $2, 1, $3, $4)`,
		conv.ConversationID, conv.TitleCiphertext, founderID, now)
	if isUniqueViolation(err) {
		return nil, nil, apperrors.InvalidArg("conversation already exists")
	}
	if err != nil {
		return nil, nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO epochs (conversation_id, epoch_number, public_key, confirmation_hash, chain_link, created_by, created_at)
		VALUES ($1, 1, $2, $3, NULL, $4, $5)`,
		conv.ConversationID, req.EpochPublicKey, req.ConfirmationHash, founderID, now)
	if err != nil {
		return nil, nil, err
	}

	// Founder is the owner and the only member
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memberships (conversation_id, member_id, kind, public_key, privilege, visible_from_epoch, joined_at, accepted_at)
		VALUES ($1, $2, 'user', $3, 'owner', 1, $4, $4)`,
		conv.ConversationID, founderID, req.FounderPublicKey, now)
	if err != nil {
		return nil, nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO member_wraps (conversation_id, member_public_key, epoch_number, wrap, visible_from_epoch)
		VALUES ($1, $2, 1, $3, 1)`,
		conv.ConversationID, req.FounderPublicKey, req.FounderWrap)
	if err != nil {
		return nil, nil, err
	}

	msg, err := s.insertMessage(ctx, tx, conv.ConversationID, founderID, req.FirstMessage)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return conv, msg, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID, requesterID string) (*models.Conversation, error) {
	m, err := s.activeMembership(ctx, s.db, conversationID, requesterID, false)
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	err = s.db.QueryRowContext(ctx, `
		SELECT conversation_id, current_epoch, title_ciphertext, title_epoch, created_by, created_at
		FROM conversations
		WHERE conversation_id = $1`, conversationID).Scan(
		&conv.ConversationID, &conv.CurrentEpoch, &conv.TitleCiphertext,
		&conv.TitleEpoch, &conv.CreatedBy, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if conv.TitleEpoch < m.VisibleFromEpoch {
		conv.TitleCiphertext = nil
	}
	return &conv, nil
}
