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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efepoch/backend/crypto"
	"github.com/efchatnet/efepoch/backend/models"
)

// chainFixture is a conversation history built locally: epochs[i] is the
// keypair of epoch i+1.
type chainFixture struct {
	member *crypto.KeyPair
	epochs []*crypto.KeyPair
}

func newChainFixture(t *testing.T, n int) *chainFixture {
	t.Helper()
	member, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	f := &chainFixture{member: member}
	for i := 0; i < n; i++ {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		f.epochs = append(f.epochs, kp)
	}
	return f
}

func (f *chainFixture) key(epoch int) []byte {
	return f.epochs[epoch-1].PrivateKey
}

func (f *chainFixture) current() int {
	return len(f.epochs)
}

// keyChain returns what an honest server would send for a member whose wrap
// sits at the current epoch with the given floor, plus every chain link.
func (f *chainFixture) keyChain(t *testing.T, floor int) *models.KeyChainResponse {
	t.Helper()
	n := f.current()
	wrap, err := crypto.WrapKey(f.member.PublicKey, f.key(n))
	require.NoError(t, err)

	resp := &models.KeyChainResponse{
		CurrentEpoch: n,
		Wraps: []models.WrapEntry{{
			EpochNumber:      n,
			Wrap:             wrap,
			ConfirmationHash: f.hash(n),
			VisibleFromEpoch: floor,
		}},
	}
	for e := 2; e <= n; e++ {
		link, err := crypto.NewChainLink(f.key(e), e, f.key(e-1))
		require.NoError(t, err)
		resp.ChainLinks = append(resp.ChainLinks, models.ChainLinkEntry{
			EpochNumber:      e,
			ChainLink:        link,
			ConfirmationHash: f.hash(e),
		})
	}
	return resp
}

func (f *chainFixture) hash(epoch int) []byte {
	kp := f.epochs[epoch-1]
	return crypto.ConfirmationHash(epoch, kp.PublicKey, kp.PrivateKey)
}

func (f *chainFixture) message(t *testing.T, seq int64, epoch int, text string) models.Message {
	t.Helper()
	ct, err := crypto.EncryptMessage(f.epochs[epoch-1].PublicKey, text)
	require.NoError(t, err)
	return models.Message{
		MessageID:   text,
		Sequence:    seq,
		EpochNumber: epoch,
		SenderID:    "user-1",
		SenderType:  models.SenderUser,
		Ciphertext:  ct,
	}
}

func withoutLink(resp *models.KeyChainResponse, epoch int) *models.KeyChainResponse {
	out := *resp
	out.ChainLinks = nil
	for _, l := range resp.ChainLinks {
		if l.EpochNumber != epoch {
			out.ChainLinks = append(out.ChainLinks, l)
		}
	}
	return &out
}
