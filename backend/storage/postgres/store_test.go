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
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/efchatnet/efepoch/backend/crypto"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/epoch"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
	"github.com/efchatnet/efepoch/backend/storage/storetest"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, terminate, err := startPostgres(ctx)
	if err != nil {
		log.Warn("postgres tests skipped", "err", err)
	} else {
		testDB = db
	}

	code := m.Run()

	if terminate != nil {
		terminate()
	}
	os.Exit(code)
}

// startPostgres runs a throwaway postgres container. Hosts without docker
// get an error instead of a panic so the suite can skip.
func startPostgres(ctx context.Context) (db *sql.DB, terminate func(), err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container runtime unavailable: %v", r)
		}
	}()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("efepoch"),
		tcpostgres.WithUsername("efepoch"),
		tcpostgres.WithPassword("password"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, nil, err
	}
	terminate = func() {
		if err := container.Terminate(ctx); err != nil {
			log.Error("failed to terminate container", "err", err)
		}
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return nil, nil, err
	}
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		terminate()
		return nil, nil, err
	}
	if err := NewStore(db, log.New(io.Discard)).Migrate(ctx); err != nil {
		db.Close()
		terminate()
		return nil, nil, err
	}
	return db, func() { db.Close(); terminate() }, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres container unavailable")
	}
	_, err := testDB.ExecContext(context.Background(),
		`TRUNCATE messages, member_wraps, memberships, epochs, conversations CASCADE`)
	require.NoError(t, err)
	return NewStore(testDB, log.New(io.Discard))
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store { return newTestStore(t) })
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestRevokeDuringRotationLeavesNoWrap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	g, err := epoch.BuildGenesis(owner.PublicKey, "Roadmap", "hello", models.SenderUser)
	require.NoError(t, err)
	conv, _, err := s.CreateConversation(ctx, "owner", g.Request)
	require.NoError(t, err)
	id := conv.ConversationID

	var links []string
	for i := 0; i < 8; i++ {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		link, err := s.CreateLink(ctx, id, "owner", models.CreateLinkRequest{
			PublicKey: kp.PublicKey,
			Privilege: models.PrivilegeRead,
			History:   models.HistoryFull,
		})
		require.NoError(t, err)
		links = append(links, link.MemberID)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, l := range links {
			assert.NoError(t, s.RevokeLink(ctx, id, "owner", l))
		}
	}()

	key, current := g.PrivateKey, 1
	for i := 0; i < 8; i++ {
		members, err := s.GetMemberKeys(ctx, id, "owner")
		require.NoError(t, err)
		r, err := epoch.BuildRotation(key, current, members, "Roadmap")
		require.NoError(t, err)
		if _, err := s.SubmitRotation(ctx, id, "owner", r.Request); err != nil {
			require.True(t, apperrors.IsConflict(err), "unexpected error: %v", err)
			continue
		}
		key, current = r.PrivateKey, r.EpochNumber
	}
	wg.Wait()

	var orphans int
	require.NoError(t, testDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM member_wraps w
		JOIN memberships m ON m.conversation_id = w.conversation_id AND m.public_key = w.member_public_key
		WHERE w.conversation_id = $1 AND m.left_at IS NOT NULL`, id).Scan(&orphans))
	assert.Zero(t, orphans)
}
