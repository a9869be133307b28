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

import "context"

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		// Conversations; the title is only ever stored sealed
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id VARCHAR(255) PRIMARY KEY,
			current_epoch INTEGER NOT NULL DEFAULT 1 CHECK (current_epoch >= 1),
			title_ciphertext BYTEA NOT NULL,
			title_epoch INTEGER NOT NULL,
			created_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Epochs; chain_link is NULL only for epoch 1
		`CREATE TABLE IF NOT EXISTS epochs (
			conversation_id VARCHAR(255) NOT NULL,
			epoch_number INTEGER NOT NULL CHECK (epoch_number >= 1),
			public_key BYTEA NOT NULL,
			confirmation_hash BYTEA NOT NULL,
			chain_link BYTEA,
			created_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (conversation_id, epoch_number),
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
		)`,

		// Memberships (users and share links)
		`CREATE TABLE IF NOT EXISTS memberships (
			conversation_id VARCHAR(255) NOT NULL,
			member_id VARCHAR(255) NOT NULL,
			kind VARCHAR(10) NOT NULL CHECK (kind IN ('user', 'link')),
			public_key BYTEA NOT NULL,
			privilege VARCHAR(10) NOT NULL CHECK (privilege IN ('read', 'write', 'admin', 'owner')),
			visible_from_epoch INTEGER NOT NULL CHECK (visible_from_epoch >= 1),
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			accepted_at TIMESTAMP,
			left_at TIMESTAMP,
			PRIMARY KEY (conversation_id, member_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
		)`,

		// One active membership per public key
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_member_keys
		ON memberships(conversation_id, public_key)
		WHERE left_at IS NULL`,

		// One wrap per member key: the latest epoch its access was (re)established
		`CREATE TABLE IF NOT EXISTS member_wraps (
			conversation_id VARCHAR(255) NOT NULL,
			member_public_key BYTEA NOT NULL,
			epoch_number INTEGER NOT NULL,
			wrap BYTEA NOT NULL,
			visible_from_epoch INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, member_public_key),
			FOREIGN KEY (conversation_id, epoch_number) REFERENCES epochs(conversation_id, epoch_number) ON DELETE CASCADE
		)`,

		// Encrypted messages
		`CREATE TABLE IF NOT EXISTS messages (
			message_id VARCHAR(255) PRIMARY KEY,
			conversation_id VARCHAR(255) NOT NULL,
			sequence BIGINT NOT NULL,
			epoch_number INTEGER NOT NULL,
			sender_id VARCHAR(255) NOT NULL,
			sender_type VARCHAR(10) NOT NULL CHECK (sender_type IN ('user', 'ai')),
			ciphertext BYTEA NOT NULL,
			cost DOUBLE PRECISION,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (conversation_id, sequence),
			FOREIGN KEY (conversation_id, epoch_number) REFERENCES epochs(conversation_id, epoch_number) ON DELETE CASCADE
		)`,

		// Visibility-filtered history reads
		`CREATE INDEX IF NOT EXISTS idx_messages_epoch
		ON messages(conversation_id, epoch_number, sequence)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}

	return nil
}
