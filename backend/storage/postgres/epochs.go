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

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

// GetKeyChain returns the requester's wrap and the chain links that stay at
// or above their visibility floor.
func (s *Store) GetKeyChain(ctx context.Context, conversationID, requesterID string) (*models.KeyChainResponse, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := s.activeMembership(ctx, tx, conversationID, requesterID, false)
	if err != nil {
		return nil, err
	}

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT current_epoch FROM conversations
		WHERE conversation_id = $1`, conversationID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var wrap *models.MemberWrap
	var w models.MemberWrap
	err = tx.QueryRowContext(ctx, `
		SELECT conversation_id, epoch_number, member_public_key, wrap, visible_from_epoch
		FROM member_wraps
		WHERE conversation_id = $1 AND member_public_key = $2 AND epoch_number >= $3`,
		conversationID, m.PublicKey, m.VisibleFromEpoch).Scan(
		&w.ConversationID, &w.EpochNumber, &w.MemberPublicKey, &w.Wrap, &w.VisibleFromEpoch)
	switch {
	case err == nil:
		wrap = &w
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	// Only epochs whose predecessor is still inside the floor, plus the floor
	// epoch itself for its confirmation hash.
	rows, err := tx.QueryContext(ctx, `
		SELECT conversation_id, epoch_number, public_key, confirmation_hash, chain_link, created_by, created_at
		FROM epochs
		WHERE conversation_id = $1 AND epoch_number >= $2 AND epoch_number <= $3
		ORDER BY epoch_number`,
		conversationID, m.VisibleFromEpoch, current)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var epochs []models.Epoch
	for rows.Next() {
		var e models.Epoch
		if err := rows.Scan(&e.ConversationID, &e.EpochNumber, &e.PublicKey,
			&e.ConfirmationHash, &e.ChainLink, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		epochs = append(epochs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return storage.FilterKeyChain(m.VisibleFromEpoch, current, wrap, epochs), nil
}

// SubmitRotation commits a new epoch with compare-and-swap on the current
// epoch. The conversation row lock serialises racing rotations; the loser
// sees the bumped epoch and gets ErrStaleEpoch.
func (s *Store) SubmitRotation(ctx context.Context, conversationID, requesterID string, req models.RotationRequest) (*models.RotationResult, error) {
	if err := storage.ValidateRotation(req); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	actor, err := s.activeMembership(ctx, tx, conversationID, requesterID, false)
	if err != nil {
		return nil, err
	}
	if !actor.Privilege.AtLeast(models.PrivilegeAdmin) {
		return nil, apperrors.ErrPrivilege
	}

	current, err := s.lockConversation(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}
	if current != req.ExpectedEpoch {
		s.logger.Debug("stale rotation", "conversation_id", conversationID, "expected", req.ExpectedEpoch, "current", current)
		return nil, apperrors.ErrStaleEpoch
	}

	active, err := s.activeMemberKeys(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := storage.MatchWraps(active, req.MemberWraps); err != nil {
		return nil, err
	}
	floors := make(map[string]int, len(active))
	for _, k := range active {
		floors[string(k.PublicKey)] = k.VisibleFromEpoch
	}

	next := current + 1

	// Insert new epoch
	_, err = tx.ExecContext(ctx, `
		INSERT INTO epochs (conversation_id, epoch_number, public_key, confirmation_hash, chain_link, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		conversationID, next, req.EpochPublicKey, req.ConfirmationHash, req.ChainLink, requesterID, s.now())
	if isUniqueViolation(err) {
		return nil, apperrors.ErrStaleEpoch
	}
	if err != nil {
		return nil, err
	}

	// Replace each member's wrap with one for the new epoch
	for _, w := range req.MemberWraps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO member_wraps (conversation_id, member_public_key, epoch_number, wrap, visible_from_epoch)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (conversation_id, member_public_key) DO UPDATE
			SET epoch_number = $3, wrap = $4, visible_from_epoch = $5`,
			conversationID, w.MemberPublicKey, next, w.Wrap, floors[string(w.MemberPublicKey)])
		if err != nil {
			return nil, err
		}
	}

	// Advance the epoch pointer and swap the title
	res, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET current_epoch = $3, title_ciphertext = $4, title_epoch = $3
		WHERE conversation_id = $1 AND current_epoch = $2`,
		conversationID, current, next, req.EncryptedTitle)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n != 1 {
		return nil, apperrors.ErrStaleEpoch
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("epoch rotated", "conversation_id", conversationID, "epoch", next, "members", len(req.MemberWraps))
	return &models.RotationResult{ConversationID: conversationID, EpochNumber: next}, nil
}
