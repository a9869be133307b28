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

// Package storetest holds the behaviour every storage.Store must share.
// Each implementation runs it from its own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efepoch/backend/crypto"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/epoch"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

// Run exercises a fresh store from newStore in every subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("CreateConversation", func(t *testing.T) { testCreateConversation(t, newStore(t)) })
	t.Run("RotationCompareAndSwap", func(t *testing.T) { testRotationCAS(t, newStore(t)) })
	t.Run("VisibilityFloor", func(t *testing.T) { testVisibilityFloor(t, newStore(t)) })
	t.Run("Revocation", func(t *testing.T) { testRevocation(t, newStore(t)) })
	t.Run("Privileges", func(t *testing.T) { testPrivileges(t, newStore(t)) })
	t.Run("MessagePaging", func(t *testing.T) { testMessagePaging(t, newStore(t)) })
}

type fixture struct {
	store  storage.Store
	convID string
	owner  *crypto.KeyPair
	key    []byte
	epoch  int
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	owner, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	g, err := epoch.BuildGenesis(owner.PublicKey, "Roadmap", "hello", models.SenderUser)
	require.NoError(t, err)
	conv, _, err := store.CreateConversation(context.Background(), "owner", g.Request)
	require.NoError(t, err)
	return &fixture{store: store, convID: conv.ConversationID, owner: owner, key: g.PrivateKey, epoch: 1}
}

func (f *fixture) add(t *testing.T, memberID string, privilege models.Privilege, history models.HistoryGrant) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = f.store.AddMember(context.Background(), f.convID, "owner", models.AddMemberRequest{
		MemberID:  memberID,
		PublicKey: kp.PublicKey,
		Privilege: privilege,
		History:   history,
	})
	require.NoError(t, err)
	return kp
}

func (f *fixture) rotate(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	members, err := f.store.GetMemberKeys(ctx, f.convID, "owner")
	require.NoError(t, err)
	r, err := epoch.BuildRotation(f.key, f.epoch, members, "Roadmap")
	require.NoError(t, err)
	res, err := f.store.SubmitRotation(ctx, f.convID, "owner", r.Request)
	require.NoError(t, err)
	require.Equal(t, f.epoch+1, res.EpochNumber)
	f.key, f.epoch = r.PrivateKey, r.EpochNumber
}

func (f *fixture) send(t *testing.T, senderID, text string) *models.Message {
	t.Helper()
	pub, err := crypto.PublicKeyOf(f.key)
	require.NoError(t, err)
	ct, err := crypto.EncryptMessage(pub, text)
	require.NoError(t, err)
	msg, err := f.store.SaveMessage(context.Background(), f.convID, senderID, models.SendMessageRequest{
		EpochNumber: f.epoch,
		SenderType:  models.SenderUser,
		Ciphertext:  ct,
	})
	require.NoError(t, err)
	return msg
}

func testCreateConversation(t *testing.T, store storage.Store) {
	ctx := context.Background()
	f := newFixture(t, store)

	conv, err := store.GetConversation(ctx, f.convID, "owner")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.CurrentEpoch)
	title, err := crypto.DecryptTitle(f.key, conv.TitleCiphertext)
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", title)

	msgs, err := store.GetMessages(ctx, f.convID, "owner", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].Sequence)
	assert.Equal(t, 1, msgs[0].EpochNumber)

	chain, err := store.GetKeyChain(ctx, f.convID, "owner")
	require.NoError(t, err)
	res := epoch.ResolveKeyChain(chain, f.owner.PrivateKey)
	assert.Empty(t, res.Failures)
	assert.Equal(t, f.key, res.Keys[1])

	_, err = store.GetConversation(ctx, f.convID, "stranger")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.GetConversation(ctx, "no-such-conversation", "owner")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testRotationCAS(t *testing.T, store storage.Store) {
	ctx := context.Background()
	f := newFixture(t, store)
	f.add(t, "bob", models.PrivilegeWrite, models.HistoryFull)

	members, err := store.GetMemberKeys(ctx, f.convID, "owner")
	require.NoError(t, err)
	require.Len(t, members, 2)

	first, err := epoch.BuildRotation(f.key, 1, members, "Roadmap")
	require.NoError(t, err)
	second, err := epoch.BuildRotation(f.key, 1, members, "Roadmap")
	require.NoError(t, err)

	res, err := store.SubmitRotation(ctx, f.convID, "owner", first.Request)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EpochNumber)

	_, err = store.SubmitRotation(ctx, f.convID, "owner", second.Request)
	assert.ErrorIs(t, err, apperrors.ErrStaleEpoch)

	// A rotation that forgets a member is refused outright.
	f.key, f.epoch = first.PrivateKey, 2
	f.add(t, "carol", models.PrivilegeRead, models.HistoryFull)
	partial, err := epoch.BuildRotation(f.key, 2, members, "Roadmap")
	require.NoError(t, err)
	_, err = store.SubmitRotation(ctx, f.convID, "owner", partial.Request)
	assert.ErrorIs(t, err, apperrors.ErrMissingMemberWrap)

	conv, err := store.GetConversation(ctx, f.convID, "owner")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.CurrentEpoch)
}

func testVisibilityFloor(t *testing.T, store storage.Store) {
	ctx := context.Background()
	f := newFixture(t, store)
	bob := f.add(t, "bob", models.PrivilegeWrite, models.HistoryFull)
	f.rotate(t)
	f.send(t, "owner", "before carol")

	carol := f.add(t, "carol", models.PrivilegeWrite, models.HistoryNone)

	// Until the next rotation carol has nothing she may read.
	conv, err := store.GetConversation(ctx, f.convID, "carol")
	require.NoError(t, err)
	assert.Nil(t, conv.TitleCiphertext)
	chain, err := store.GetKeyChain(ctx, f.convID, "carol")
	require.NoError(t, err)
	assert.Empty(t, chain.Wraps)
	assert.Empty(t, chain.ChainLinks)

	f.rotate(t)
	f.send(t, "carol", "after carol")

	chain, err = store.GetKeyChain(ctx, f.convID, "carol")
	require.NoError(t, err)
	require.Len(t, chain.Wraps, 1)
	assert.Equal(t, 3, chain.Wraps[0].EpochNumber)
	assert.Empty(t, chain.ChainLinks)
	res := epoch.ResolveKeyChain(chain, carol.PrivateKey)
	assert.Equal(t, map[int][]byte{3: f.key}, res.Keys)

	msgs, err := store.GetMessages(ctx, f.convID, "carol", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 3, msgs[0].EpochNumber)

	// bob walks the chain all the way down.
	chain, err = store.GetKeyChain(ctx, f.convID, "bob")
	require.NoError(t, err)
	res = epoch.ResolveKeyChain(chain, bob.PrivateKey)
	assert.Empty(t, res.Failures)
	assert.Len(t, res.Keys, 3)

	msgs, err = store.GetMessages(ctx, f.convID, "bob", 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func testRevocation(t *testing.T, store storage.Store) {
	ctx := context.Background()
	f := newFixture(t, store)
	f.add(t, "bob", models.PrivilegeWrite, models.HistoryFull)
	f.rotate(t)

	require.NoError(t, store.RemoveMember(ctx, f.convID, "owner", "bob"))

	_, err := store.GetKeyChain(ctx, f.convID, "bob")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.GetMessages(ctx, f.convID, "bob", 0, 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	members, err := store.GetMemberKeys(ctx, f.convID, "owner")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "owner", members[0].MemberID)

	// The next rotation only wraps for who is left.
	f.rotate(t)

	assert.ErrorIs(t, store.RemoveMember(ctx, f.convID, "owner", "owner"), apperrors.ErrOwnerImmutable)
	assert.ErrorIs(t, store.RemoveMember(ctx, f.convID, "owner", "bob"), apperrors.ErrNotFound)
}

func testPrivileges(t *testing.T, store storage.Store) {
	ctx := context.Background()
	f := newFixture(t, store)
	f.add(t, "reader", models.PrivilegeRead, models.HistoryFull)
	f.add(t, "admin", models.PrivilegeAdmin, models.HistoryFull)

	pub, err := crypto.PublicKeyOf(f.key)
	require.NoError(t, err)
	ct, err := crypto.EncryptMessage(pub, "hi")
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, f.convID, "reader", models.SendMessageRequest{
		EpochNumber: 1, SenderType: models.SenderUser, Ciphertext: ct,
	})
	assert.ErrorIs(t, err, apperrors.ErrPrivilege)

	members, err := store.GetMemberKeys(ctx, f.convID, "reader")
	require.NoError(t, err)
	r, err := epoch.BuildRotation(f.key, 1, members, "Roadmap")
	require.NoError(t, err)
	_, err = store.SubmitRotation(ctx, f.convID, "reader", r.Request)
	assert.ErrorIs(t, err, apperrors.ErrPrivilege)

	res, err := store.SubmitRotation(ctx, f.convID, "admin", r.Request)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EpochNumber)

	assert.ErrorIs(t, store.ChangePrivilege(ctx, f.convID, "admin", "owner", models.PrivilegeRead), apperrors.ErrOwnerImmutable)
	assert.ErrorIs(t, store.ChangePrivilege(ctx, f.convID, "owner", "reader", models.PrivilegeOwner), apperrors.ErrInvalidPrivilege)
	require.NoError(t, store.ChangePrivilege(ctx, f.convID, "owner", "reader", models.PrivilegeWrite))

	link, err := store.CreateLink(ctx, f.convID, "admin", models.CreateLinkRequest{
		PublicKey: mustKey(t).PublicKey,
		Privilege: models.PrivilegeRead,
		History:   models.HistoryNone,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MemberKindLink, link.Kind)
	assert.Equal(t, 3, link.VisibleFromEpoch)
	// Links and users are revoked through their own operations.
	assert.ErrorIs(t, store.RemoveMember(ctx, f.convID, "owner", link.MemberID), apperrors.ErrNotFound)
	require.NoError(t, store.RevokeLink(ctx, f.convID, "owner", link.MemberID))

	require.NoError(t, store.AcceptMembership(ctx, f.convID, "reader"))
	require.NoError(t, store.AcceptMembership(ctx, f.convID, "reader"))
}

func testMessagePaging(t *testing.T, store storage.Store) {
	ctx := context.Background()
	f := newFixture(t, store)
	for _, text := range []string{"two", "three", "four", "five"} {
		f.send(t, "owner", text)
	}

	page, err := store.GetMessages(ctx, f.convID, "owner", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].Sequence)
	assert.Equal(t, int64(4), page[1].Sequence)

	text, err := crypto.DecryptMessage(f.key, page[0].Ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "three", text)

	rest, err := store.GetMessages(ctx, f.convID, "owner", 4, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(5), rest[0].Sequence)

	_, err = store.SaveMessage(ctx, f.convID, "owner", models.SendMessageRequest{
		EpochNumber: 2, SenderType: models.SenderUser, Ciphertext: []byte("x"),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidEpoch)
}

func mustKey(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}
