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
	"time"

	"github.com/charmbracelet/log"
	"github.com/lib/pq"

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

// uniqueViolation is the postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type Store struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

func NewStore(db *sql.DB, logger *log.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With("component", "postgres"),
		now:    time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

const membershipColumns = `conversation_id, member_id, kind, public_key, privilege,
	visible_from_epoch, joined_at, accepted_at, left_at`

func scanMembership(row interface{ Scan(...any) error }) (*models.Membership, error) {
	var m models.Membership
	var acceptedAt, leftAt sql.NullTime
	err := row.Scan(&m.ConversationID, &m.MemberID, &m.Kind, &m.PublicKey, &m.Privilege,
		&m.VisibleFromEpoch, &m.JoinedAt, &acceptedAt, &leftAt)
	if err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		m.AcceptedAt = &acceptedAt.Time
	}
	if leftAt.Valid {
		m.LeftAt = &leftAt.Time
	}
	return &m, nil
}

// activeMembership is the visibility gate every read passes through: a
// missing conversation, a missing membership and a revoked membership all
// come back as the same ErrNotFound.
func (s *Store) activeMembership(ctx context.Context, q querier, conversationID, memberID string, forUpdate bool) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships
		WHERE conversation_id = $1 AND member_id = $2 AND left_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanMembership(q.QueryRowContext(ctx, query, conversationID, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) activeMemberKeys(ctx context.Context, q querier, conversationID string) ([]models.MemberKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT member_id, kind, public_key, privilege, visible_from_epoch
		FROM memberships
		WHERE conversation_id = $1 AND left_at IS NULL
		ORDER BY member_id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.MemberKey
	for rows.Next() {
		var k models.MemberKey
		if err := rows.Scan(&k.MemberID, &k.Kind, &k.PublicKey, &k.Privilege, &k.VisibleFromEpoch); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// lockConversation reads the current epoch and holds the row until the
// transaction ends, serialising rotations, membership changes and message
// sequencing.
func (s *Store) lockConversation(ctx context.Context, tx *sql.Tx, conversationID string) (int, error) {
	var current int
	err := tx.QueryRowContext(ctx, `
		SELECT current_epoch FROM conversations
		WHERE conversation_id = $1
		FOR UPDATE`, conversationID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.ErrNotFound
	}
	return current, err
}
