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

	"github.com/google/uuid"

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

// AddMember adds a user membership. The caller is expected to rotate right
// after, which is what hands the new member a wrap.
func (s *Store) AddMember(ctx context.Context, conversationID, actorID string, req models.AddMemberRequest) (*models.Membership, error) {
	if req.MemberID == "" {
		return nil, apperrors.InvalidArg("member_id is required")
	}
	if err := storage.ValidateGrant(req.PublicKey, req.Privilege, req.History); err != nil {
		return nil, err
	}
	return s.addMembership(ctx, conversationID, actorID, req.MemberID, models.MemberKindUser, req.PublicKey, req.Privilege, req.History)
}

// CreateLink adds a share-link membership keyed by the link's public key.
func (s *Store) CreateLink(ctx context.Context, conversationID, actorID string, req models.CreateLinkRequest) (*models.Membership, error) {
	if err := storage.ValidateGrant(req.PublicKey, req.Privilege, req.History); err != nil {
		return nil, err
	}
	return s.addMembership(ctx, conversationID, actorID, uuid.New().String(), models.MemberKindLink, req.PublicKey, req.Privilege, req.History)
}

func (s *Store) addMembership(ctx context.Context, conversationID, actorID, memberID string, kind models.MemberKind, publicKey []byte, privilege models.Privilege, history models.HistoryGrant) (*models.Membership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	actor, err := s.activeMembership(ctx, tx, conversationID, actorID, false)
	if err != nil {
		return nil, err
	}
	if err := storage.CanManage(actor, nil); err != nil {
		return nil, err
	}

	// Lock the epoch so the visibility floor is computed against a stable value
	current, err := s.lockConversation(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}

	m := &models.Membership{
		ConversationID:   conversationID,
		MemberID:         memberID,
		Kind:             kind,
		PublicKey:        publicKey,
		Privilege:        privilege,
		VisibleFromEpoch: storage.VisibleFrom(history, current),
		JoinedAt:         s.now(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memberships (conversation_id, member_id, kind, public_key, privilege, visible_from_epoch, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ConversationID, m.MemberID, m.Kind, m.PublicKey, m.Privilege, m.VisibleFromEpoch, m.JoinedAt)
	if isUniqueViolation(err) {
		// Either the member row exists (revoked rows are never revived) or
		// the key already belongs to an active member.
		return nil, apperrors.ErrAlreadyMember
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) RemoveMember(ctx context.Context, conversationID, actorID, memberID string) error {
	return s.revoke(ctx, conversationID, actorID, memberID, models.MemberKindUser)
}

func (s *Store) RevokeLink(ctx context.Context, conversationID, actorID, linkID string) error {
	return s.revoke(ctx, conversationID, actorID, linkID, models.MemberKindLink)
}

func (s *Store) revoke(ctx context.Context, conversationID, actorID, memberID string, kind models.MemberKind) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	actor, err := s.activeMembership(ctx, tx, conversationID, actorID, false)
	if err != nil {
		return err
	}
	// Membership writes queue behind rotations on the conversation row, so a
	// rotation never wraps for a member revoked while it was in flight.
	if _, err := s.lockConversation(ctx, tx, conversationID); err != nil {
		return err
	}
	target, err := s.activeMembership(ctx, tx, conversationID, memberID, true)
	if err != nil {
		return err
	}
	if target.Kind != kind {
		return apperrors.ErrNotFound
	}
	if memberID != actorID {
		if err := storage.CanManage(actor, target); err != nil {
			return err
		}
	} else if target.Privilege == models.PrivilegeOwner {
		return apperrors.ErrOwnerImmutable
	}

	// Mark as left; the row stays so the id can never be reused
	_, err = tx.ExecContext(ctx, `
		UPDATE memberships SET left_at = $3
		WHERE conversation_id = $1 AND member_id = $2`,
		conversationID, memberID, s.now())
	if err != nil {
		return err
	}

	// Remove their wrap
	_, err = tx.ExecContext(ctx, `
		DELETE FROM member_wraps
		WHERE conversation_id = $1 AND member_public_key = $2`,
		conversationID, target.PublicKey)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ChangePrivilege(ctx context.Context, conversationID, actorID, memberID string, privilege models.Privilege) error {
	if !privilege.Valid() || privilege == models.PrivilegeOwner {
		return apperrors.ErrInvalidPrivilege
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	actor, err := s.activeMembership(ctx, tx, conversationID, actorID, false)
	if err != nil {
		return err
	}
	if _, err := s.lockConversation(ctx, tx, conversationID); err != nil {
		return err
	}
	target, err := s.activeMembership(ctx, tx, conversationID, memberID, true)
	if err != nil {
		return err
	}
	if err := storage.CanManage(actor, target); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memberships SET privilege = $3
		WHERE conversation_id = $1 AND member_id = $2`,
		conversationID, memberID, privilege)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) AcceptMembership(ctx context.Context, conversationID, memberID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET accepted_at = COALESCE(accepted_at, $3)
		WHERE conversation_id = $1 AND member_id = $2 AND left_at IS NULL`,
		conversationID, memberID, s.now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *Store) GetMemberKeys(ctx context.Context, conversationID, requesterID string) ([]models.MemberKey, error) {
	if _, err := s.activeMembership(ctx, s.db, conversationID, requesterID, false); err != nil {
		return nil, err
	}
	return s.activeMemberKeys(ctx, s.db, conversationID)
}
