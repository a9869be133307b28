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

	"github.com/google/uuid"

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

func (s *Store) SaveMessage(ctx context.Context, conversationID, senderID string, req models.SendMessageRequest) (*models.Message, error) {
	if err := storage.ValidateMessage(req); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := s.activeMembership(ctx, tx, conversationID, senderID, false)
	if err != nil {
		return nil, err
	}
	if !m.Privilege.AtLeast(models.PrivilegeWrite) {
		return nil, apperrors.ErrPrivilege
	}
	current, err := s.lockConversation(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}
	if req.EpochNumber > current || req.EpochNumber < m.VisibleFromEpoch {
		return nil, apperrors.ErrInvalidEpoch
	}

	msg, err := s.insertMessage(ctx, tx, conversationID, senderID, req)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// insertMessage assigns the next sequence number. The caller holds the
// conversation row lock (or has just created the row).
func (s *Store) insertMessage(ctx context.Context, tx *sql.Tx, conversationID, senderID string, req models.SendMessageRequest) (*models.Message, error) {
	msg := &models.Message{
		MessageID:      uuid.New().String(),
		ConversationID: conversationID,
		EpochNumber:    req.EpochNumber,
		SenderID:       senderID,
		SenderType:     req.SenderType,
		Ciphertext:     req.Ciphertext,
		Cost:           req.Cost,
		CreatedAt:      s.now(),
	}
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM messages
		WHERE conversation_id = $1`, conversationID).Scan(&msg.Sequence)
	if err != nil {
		return nil, err
	}

	var cost sql.NullFloat64
	if msg.Cost != nil {
		cost = sql.NullFloat64{Float64: *msg.Cost, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages
		(message_id, conversation_id, sequence, epoch_number, sender_id, sender_type, ciphertext, cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.MessageID, msg.ConversationID, msg.Sequence, msg.EpochNumber, msg.SenderID,
		msg.SenderType, msg.Ciphertext, cost, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages returns messages after afterSequence that the requester's
// visibility floor admits, oldest first.
func (s *Store) GetMessages(ctx context.Context, conversationID, requesterID string, afterSequence int64, limit int) ([]models.Message, error) {
	m, err := s.activeMembership(ctx, s.db, conversationID, requesterID, false)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = storage.DefaultMessageLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, conversation_id, sequence, epoch_number, sender_id, sender_type, ciphertext, cost, created_at
		FROM messages
		WHERE conversation_id = $1 AND epoch_number >= $2 AND sequence > $3
		ORDER BY sequence
		LIMIT $4`,
		conversationID, m.VisibleFromEpoch, afterSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var cost sql.NullFloat64
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &msg.Sequence, &msg.EpochNumber,
			&msg.SenderID, &msg.SenderType, &msg.Ciphertext, &cost, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if cost.Valid {
			c := cost.Float64
			msg.Cost = &c
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
