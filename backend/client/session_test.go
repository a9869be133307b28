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

package client

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efepoch/backend/crypto"
	"github.com/efchatnet/efepoch/backend/epoch"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/integration"
	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/models"
)

const (
	testSecret = "session-test-secret"
	testIssuer = "efchat"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	e2e, err := integration.NewE2EIntegration(context.Background(), &integration.Config{
		JWTSecret: testSecret,
		JWTIssuer: testIssuer,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	r := mux.NewRouter()
	e2e.RegisterRoutes(r, nil)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok, err := middleware.IssueToken(testSecret, middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return tok
}

func newTestSession(t *testing.T, srv *httptest.Server, userID string) *Session {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return NewSession(New(srv.URL, tokenFor(t, userID)), SessionConfig{
		UserID:   userID,
		Identity: kp,
		Logger:   quietLogger(),
	})
}

func (s *Session) memberRequest(id string, priv models.Privilege, history models.HistoryGrant) models.AddMemberRequest {
	return models.AddMemberRequest{
		MemberID:  id,
		PublicKey: s.identity.PublicKey,
		Privilege: priv,
		History:   history,
	}
}

func currentEpoch(t *testing.T, s *Session, conversationID string) int {
	t.Helper()
	conv, err := s.api.GetConversation(context.Background(), conversationID)
	require.NoError(t, err)
	return conv.CurrentEpoch
}

func TestSessionFullHistoryMember(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := newTestSession(t, srv, "owner")
	bob := newTestSession(t, srv, "bob")

	created, err := owner.CreateConversation(ctx, "Plans", "hello")
	require.NoError(t, err)
	id := created.Conversation.ConversationID
	assert.Equal(t, 1, created.Conversation.CurrentEpoch)
	assert.Equal(t, int64(1), created.FirstMessage.Sequence)

	m, err := owner.AddMember(ctx, id, bob.memberRequest("bob", models.PrivilegeWrite, models.HistoryFull))
	require.NoError(t, err)
	assert.Equal(t, 1, m.VisibleFromEpoch)
	assert.Equal(t, 2, currentEpoch(t, owner, id))

	history, err := bob.History(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "owner", history[0].SenderID)

	title, err := bob.Title(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Plans", title)
}

func TestSessionNoHistoryMember(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := newTestSession(t, srv, "owner")
	bob := newTestSession(t, srv, "bob")

	created, err := owner.CreateConversation(ctx, "Plans", "before bob")
	require.NoError(t, err)
	id := created.Conversation.ConversationID

	m, err := owner.AddMember(ctx, id, bob.memberRequest("bob", models.PrivilegeWrite, models.HistoryNone))
	require.NoError(t, err)
	assert.Equal(t, 2, m.VisibleFromEpoch)

	history, err := bob.History(ctx, id, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = bob.Send(ctx, id, "after bob", models.SenderUser, nil)
	require.NoError(t, err)

	ownerView, err := owner.History(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, ownerView, 2)
	assert.Equal(t, "before bob", ownerView[0].Content)
	assert.Equal(t, "after bob", ownerView[1].Content)

	// bob never holds the epoch-1 key.
	out := bob.pipeline.Decrypt(id, []models.Message{{
		MessageID:   "m1",
		EpochNumber: 1,
		SenderType:  models.SenderUser,
		Ciphertext:  []byte("irrelevant"),
	}})
	assert.Equal(t, epoch.PlaceholderMissingKey, out[0].Content)

	title, err := bob.Title(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Plans", title)
}

func TestSessionSendDoesNotRotate(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := newTestSession(t, srv, "owner")

	created, err := owner.CreateConversation(ctx, "Solo", "one")
	require.NoError(t, err)
	id := created.Conversation.ConversationID

	cost := 0.01
	for _, text := range []string{"two", "three"} {
		msg, err := owner.Send(ctx, id, text, models.SenderAI, &cost)
		require.NoError(t, err)
		assert.Equal(t, 1, msg.EpochNumber)
	}
	assert.Equal(t, 1, currentEpoch(t, owner, id))

	history, err := owner.History(ctx, id, 1, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleAssistant, history[0].Role)
	require.NotNil(t, history[0].Cost)
	assert.Equal(t, 0.01, *history[0].Cost)
}

func TestSessionRemovedMemberLosesAccess(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := newTestSession(t, srv, "owner")
	bob := newTestSession(t, srv, "bob")

	created, err := owner.CreateConversation(ctx, "Plans", "hello")
	require.NoError(t, err)
	id := created.Conversation.ConversationID
	_, err = owner.AddMember(ctx, id, bob.memberRequest("bob", models.PrivilegeWrite, models.HistoryFull))
	require.NoError(t, err)
	_, err = bob.Refresh(ctx, id)
	require.NoError(t, err)

	require.NoError(t, owner.RemoveMember(ctx, id, "bob"))
	assert.Equal(t, 3, currentEpoch(t, owner, id))

	_, err = bob.Refresh(ctx, id)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = bob.History(ctx, id, 0, 0)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = owner.Send(ctx, id, "after bob left", models.SenderUser, nil)
	require.NoError(t, err)
	ownerView, err := owner.api.GetMessages(ctx, id, 0, 0)
	require.NoError(t, err)
	out := bob.pipeline.Decrypt(id, ownerView)
	require.Len(t, out, 2)
	assert.Equal(t, "hello", out[0].Content)
	assert.Equal(t, epoch.PlaceholderMissingKey, out[1].Content)
}

func TestSessionOwnerCannotBeRemoved(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := newTestSession(t, srv, "owner")
	alice := newTestSession(t, srv, "alice")

	created, err := owner.CreateConversation(ctx, "Plans", "hello")
	require.NoError(t, err)
	id := created.Conversation.ConversationID
	_, err = owner.AddMember(ctx, id, alice.memberRequest("alice", models.PrivilegeAdmin, models.HistoryFull))
	require.NoError(t, err)

	err = alice.RemoveMember(ctx, id, "owner")
	assert.True(t, errors.Is(err, apperrors.ErrOwnerImmutable))
	err = alice.ChangePrivilege(ctx, id, "owner", models.PrivilegeRead)
	assert.True(t, errors.Is(err, apperrors.ErrOwnerImmutable))
	assert.Equal(t, 2, currentEpoch(t, owner, id))
}

func TestSessionConcurrentLinkRevocations(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := newTestSession(t, srv, "owner")
	alice := newTestSession(t, srv, "alice")

	created, err := owner.CreateConversation(ctx, "Plans", "hello")
	require.NoError(t, err)
	id := created.Conversation.ConversationID
	_, err = owner.AddMember(ctx, id, alice.memberRequest("alice", models.PrivilegeAdmin, models.HistoryFull))
	require.NoError(t, err)

	linkKey := func() []byte {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		return kp.PublicKey
	}
	link1, err := owner.CreateLink(ctx, id, models.CreateLinkRequest{PublicKey: linkKey(), Privilege: models.PrivilegeRead, History: models.HistoryNone})
	require.NoError(t, err)
	link2, err := owner.api.CreateLink(ctx, id, models.CreateLinkRequest{PublicKey: linkKey(), Privilege: models.PrivilegeRead, History: models.HistoryNone})
	require.NoError(t, err)
	require.Equal(t, 3, currentEpoch(t, owner, id))

	_, err = alice.Refresh(ctx, id)
	require.NoError(t, err)

	require.NoError(t, owner.RevokeLink(ctx, id, link1.MemberID))
	assert.Equal(t, 4, currentEpoch(t, owner, id))

	// alice still holds epoch 3 as current, so her first submission conflicts
	// and the retry lands on top of the owner's rotation.
	require.NoError(t, alice.api.RevokeLink(ctx, id, link2.MemberID))
	rotated, err := alice.coordinator.Rotate(ctx, id, "Plans")
	require.NoError(t, err)
	assert.Equal(t, 5, rotated.EpochNumber)
	assert.Equal(t, 5, currentEpoch(t, owner, id))
	n, ok := alice.cache.CurrentEpoch(id)
	require.True(t, ok)
	assert.Equal(t, 5, n)

	res, err := owner.Refresh(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	for e := 1; e <= 5; e++ {
		assert.Contains(t, res.Keys, e)
	}
}

// cancellingAPI cancels the caller's context while the key chain is in flight.
type cancellingAPI struct {
	API
	cancel context.CancelFunc
}

func (c cancellingAPI) FetchKeyChain(ctx context.Context, conversationID string) (*models.KeyChainResponse, error) {
	resp, err := c.API.FetchKeyChain(ctx, conversationID)
	c.cancel()
	return resp, err
}

func TestSessionRefreshDiscardsCancelledFetch(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := newTestSession(t, srv, "owner")

	created, err := owner.CreateConversation(ctx, "Plans", "hello")
	require.NoError(t, err)
	id := created.Conversation.ConversationID

	cctx, cancel := context.WithCancel(ctx)
	reader := NewSession(cancellingAPI{API: owner.api, cancel: cancel}, SessionConfig{
		UserID:   "owner",
		Identity: owner.identity,
		Logger:   quietLogger(),
	})
	version := reader.cache.Version()

	_, err = reader.Refresh(cctx, id)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, version, reader.cache.Version())
	_, ok := reader.cache.Get(id, 1)
	assert.False(t, ok)
}

func TestSessionWatchRotations(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv := newTestServer(t)
	owner := newTestSession(t, srv, "owner")
	bob := newTestSession(t, srv, "bob")

	created, err := owner.CreateConversation(ctx, "Plans", "hello")
	require.NoError(t, err)
	id := created.Conversation.ConversationID
	_, err = owner.AddMember(ctx, id, bob.memberRequest("bob", models.PrivilegeWrite, models.HistoryFull))
	require.NoError(t, err)
	_, err = bob.Refresh(ctx, id)
	require.NoError(t, err)

	events, err := bob.WatchRotations(ctx, id)
	require.NoError(t, err)

	require.NoError(t, owner.ChangePrivilege(ctx, id, "bob", models.PrivilegeRead))

	select {
	case event := <-events:
		assert.Equal(t, 3, event.EpochNumber)
		assert.Equal(t, "owner", event.RotatedBy)
		assert.Equal(t, id, event.ConversationID)
	case <-ctx.Done():
		t.Fatal("no rotation event")
	}

	n, _ := bob.cache.CurrentEpoch(id)
	assert.Equal(t, 3, n)
	_, ok := bob.cache.Get(id, 3)
	assert.True(t, ok)

	cancel()
	for range events {
	}
}

func TestClientErrorMapping(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := newTestSession(t, srv, "owner")

	created, err := owner.CreateConversation(ctx, "Plans", "hello")
	require.NoError(t, err)
	id := created.Conversation.ConversationID

	members, err := owner.api.FetchMemberKeys(ctx, id)
	require.NoError(t, err)
	key, _ := owner.cache.Get(id, 1)
	rot, err := epoch.BuildRotation(key, 7, members, "Plans")
	require.NoError(t, err)

	_, err = owner.api.SubmitRotation(ctx, id, rot.Request)
	assert.True(t, errors.Is(err, apperrors.ErrStaleEpoch))

	_, err = owner.api.FetchKeyChain(ctx, "no-such-conversation")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	stranger := New(srv.URL, "not-a-token")
	_, err = stranger.FetchKeyChain(ctx, id)
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthenticated))

	_, err = owner.api.SendMessage(ctx, id, models.SendMessageRequest{EpochNumber: 1, SenderType: "robot", Ciphertext: []byte{1}})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
}
