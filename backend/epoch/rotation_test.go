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

package epoch

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efepoch/backend/crypto"
	"github.com/efchatnet/efepoch/backend/epoch/mocks"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
)

func memberKeys(t *testing.T, n int) ([]models.MemberKey, []*crypto.KeyPair) {
	t.Helper()
	var keys []models.MemberKey
	var pairs []*crypto.KeyPair
	for i := 0; i < n; i++ {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		pairs = append(pairs, kp)
		keys = append(keys, models.MemberKey{
			MemberID:  string(rune('a' + i)),
			Kind:      models.MemberKindUser,
			PublicKey: kp.PublicKey,
			Privilege: models.PrivilegeWrite,
		})
	}
	return keys, pairs
}

func TestBuildRotation(t *testing.T) {
	f := newChainFixture(t, 3)
	members, pairs := memberKeys(t, 3)

	rot, err := BuildRotation(f.key(3), 3, members, "Roadmap")
	require.NoError(t, err)

	assert.Equal(t, 4, rot.EpochNumber)
	assert.Equal(t, 3, rot.Request.ExpectedEpoch)
	require.Len(t, rot.Request.MemberWraps, 3)

	for i, w := range rot.Request.MemberWraps {
		assert.Equal(t, pairs[i].PublicKey, w.MemberPublicKey)
		key, err := crypto.UnwrapKey(pairs[i].PrivateKey, w.Wrap)
		require.NoError(t, err)
		assert.Equal(t, rot.PrivateKey, key)
	}

	prev, err := crypto.FollowChainLink(rot.PrivateKey, 4, rot.Request.ChainLink)
	require.NoError(t, err)
	assert.Equal(t, f.key(3), prev)

	assert.True(t, crypto.VerifyConfirmation(4, rot.PrivateKey, rot.Request.ConfirmationHash))

	pub, err := crypto.PublicKeyOf(rot.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, pub, rot.Request.EpochPublicKey)
	title, err := crypto.DecryptTitle(rot.PrivateKey, rot.Request.EncryptedTitle)
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", title)
}

func TestBuildRotationRejects(t *testing.T) {
	f := newChainFixture(t, 1)
	members, _ := memberKeys(t, 1)

	tests := []struct {
		name    string
		key     []byte
		epoch   int
		members []models.MemberKey
		want    error
	}{
		{"missing key", nil, 1, members, apperrors.ErrPlaceholderKey},
		{"zero key", make([]byte, crypto.PrivateKeySize), 1, members, apperrors.ErrPlaceholderKey},
		{"no members", f.key(1), 1, nil, apperrors.ErrNoMembers},
		{"epoch zero", f.key(1), 0, members, apperrors.ErrInvalidEpoch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildRotation(tt.key, tt.epoch, tt.members, "t")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCoordinatorRotateRequiresLocalKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)
	f := newChainFixture(t, 1)

	// No expectations: the remote must not be touched.
	c := NewCoordinator(remote, NewKeyCache(), f.member.PrivateKey)

	_, err := c.Rotate(context.Background(), "conv-1", "t")
	assert.True(t, errors.Is(err, apperrors.ErrPlaceholderKey))
}

func TestCoordinatorRotateWritesCacheAfterConfirmation(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)
	f := newChainFixture(t, 1)
	members, pairs := memberKeys(t, 2)

	cache := NewKeyCache()
	cache.Set("conv-1", 1, f.key(1))
	cache.SetCurrentEpoch("conv-1", 1)
	c := NewCoordinator(remote, cache, f.member.PrivateKey)

	var submitted models.RotationRequest
	gomock.InOrder(
		remote.EXPECT().FetchMemberKeys(gomock.Any(), "conv-1").Return(members, nil),
		remote.EXPECT().SubmitRotation(gomock.Any(), "conv-1", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, req models.RotationRequest) (*models.RotationResult, error) {
				submitted = req
				_, ok := cache.Get("conv-1", 2)
				assert.False(t, ok, "cache written before confirmation")
				return &models.RotationResult{ConversationID: "conv-1", EpochNumber: 2}, nil
			}),
	)

	res, err := c.Rotate(context.Background(), "conv-1", "t")
	require.NoError(t, err)
	assert.Equal(t, 2, res.EpochNumber)
	assert.Equal(t, 1, submitted.ExpectedEpoch)

	key, ok := cache.Get("conv-1", 2)
	require.True(t, ok)
	unwrapped, err := crypto.UnwrapKey(pairs[0].PrivateKey, submitted.MemberWraps[0].Wrap)
	require.NoError(t, err)
	assert.Equal(t, unwrapped, key)

	current, _ := cache.CurrentEpoch("conv-1")
	assert.Equal(t, 2, current)
}

func TestCoordinatorRotateRetriesStaleEpoch(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)

	// Someone else already advanced the conversation to epoch 2.
	f := newChainFixture(t, 2)
	members, _ := memberKeys(t, 1)

	cache := NewKeyCache()
	cache.Set("conv-1", 1, f.key(1))
	cache.SetCurrentEpoch("conv-1", 1)
	c := NewCoordinator(remote, cache, f.member.PrivateKey)

	var retried models.RotationRequest
	gomock.InOrder(
		remote.EXPECT().FetchMemberKeys(gomock.Any(), "conv-1").Return(members, nil),
		remote.EXPECT().SubmitRotation(gomock.Any(), "conv-1", gomock.Any()).Return(nil, apperrors.ErrStaleEpoch),
		remote.EXPECT().FetchKeyChain(gomock.Any(), "conv-1").Return(f.keyChain(t, 1), nil),
		remote.EXPECT().FetchMemberKeys(gomock.Any(), "conv-1").Return(members, nil),
		remote.EXPECT().SubmitRotation(gomock.Any(), "conv-1", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, req models.RotationRequest) (*models.RotationResult, error) {
				retried = req
				return &models.RotationResult{ConversationID: "conv-1", EpochNumber: 3}, nil
			}),
	)

	res, err := c.Rotate(context.Background(), "conv-1", "t")
	require.NoError(t, err)
	assert.Equal(t, 3, res.EpochNumber)

	assert.Equal(t, 2, retried.ExpectedEpoch)

	current, _ := cache.CurrentEpoch("conv-1")
	assert.Equal(t, 3, current)
	key, ok := cache.Get("conv-1", 3)
	require.True(t, ok)

	// The retry chains back to the epoch that won the race.
	prev, err := crypto.FollowChainLink(key, 3, retried.ChainLink)
	require.NoError(t, err)
	assert.Equal(t, f.key(2), prev)
}

func TestCoordinatorRotateRetriesChangedMembership(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)
	f := newChainFixture(t, 1)
	before, _ := memberKeys(t, 3)
	after := before[:2]

	cache := NewKeyCache()
	cache.Set("conv-1", 1, f.key(1))
	cache.SetCurrentEpoch("conv-1", 1)
	c := NewCoordinator(remote, cache, f.member.PrivateKey)

	var retried models.RotationRequest
	gomock.InOrder(
		remote.EXPECT().FetchMemberKeys(gomock.Any(), "conv-1").Return(before, nil),
		remote.EXPECT().SubmitRotation(gomock.Any(), "conv-1", gomock.Any()).Return(nil, apperrors.ErrUnknownMemberWrap),
		remote.EXPECT().FetchKeyChain(gomock.Any(), "conv-1").Return(f.keyChain(t, 1), nil),
		remote.EXPECT().FetchMemberKeys(gomock.Any(), "conv-1").Return(after, nil),
		remote.EXPECT().SubmitRotation(gomock.Any(), "conv-1", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, req models.RotationRequest) (*models.RotationResult, error) {
				retried = req
				return &models.RotationResult{ConversationID: "conv-1", EpochNumber: 2}, nil
			}),
	)

	res, err := c.Rotate(context.Background(), "conv-1", "t")
	require.NoError(t, err)
	assert.Equal(t, 2, res.EpochNumber)
	assert.Equal(t, 1, retried.ExpectedEpoch)
	assert.Len(t, retried.MemberWraps, 2)
}

func TestCoordinatorRotateGivesUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)
	f := newChainFixture(t, 2)
	members, _ := memberKeys(t, 1)

	cache := NewKeyCache()
	cache.Set("conv-1", 1, f.key(1))
	cache.SetCurrentEpoch("conv-1", 1)
	c := NewCoordinator(remote, cache, f.member.PrivateKey, WithMaxAttempts(2))

	remote.EXPECT().FetchMemberKeys(gomock.Any(), "conv-1").Return(members, nil).Times(2)
	remote.EXPECT().SubmitRotation(gomock.Any(), "conv-1", gomock.Any()).Return(nil, apperrors.ErrStaleEpoch).Times(2)
	remote.EXPECT().FetchKeyChain(gomock.Any(), "conv-1").Return(f.keyChain(t, 1), nil).Times(1)

	_, err := c.Rotate(context.Background(), "conv-1", "t")
	assert.True(t, errors.Is(err, apperrors.ErrStaleEpoch))

	_, ok := cache.Get("conv-1", 3)
	assert.False(t, ok)
}

func TestCoordinatorRotateDoesNotRetryOtherErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)
	f := newChainFixture(t, 1)
	members, _ := memberKeys(t, 1)

	cache := NewKeyCache()
	cache.Set("conv-1", 1, f.key(1))
	cache.SetCurrentEpoch("conv-1", 1)
	c := NewCoordinator(remote, cache, f.member.PrivateKey)

	remote.EXPECT().FetchMemberKeys(gomock.Any(), "conv-1").Return(members, nil)
	remote.EXPECT().SubmitRotation(gomock.Any(), "conv-1", gomock.Any()).Return(nil, apperrors.ErrPrivilege)

	_, err := c.Rotate(context.Background(), "conv-1", "t")
	assert.True(t, errors.Is(err, apperrors.ErrPrivilege))
	current, _ := cache.CurrentEpoch("conv-1")
	assert.Equal(t, 1, current)
}
