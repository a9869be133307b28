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

// Package epoch reconstructs, caches and rotates a conversation's epoch keys,
// and decrypts message history with them.
package epoch

import (
	"sort"

	"github.com/efchatnet/efepoch/backend/crypto"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
)

// Resolution is the outcome of resolving one key-chain response. Failures
// holds epochs whose key material was present but did not check out; an
// epoch that is simply unreachable appears in neither map.
type Resolution struct {
	Keys     map[int][]byte
	Failures map[int]error
}

// ResolveKeyChain unwraps the membership's wraps and walks the chain links
// backward from each, one epoch at a time, never below the wrap's
// visibility floor. A missing link ends the walk without error.
func ResolveKeyChain(resp *models.KeyChainResponse, memberPrivateKey []byte) *Resolution {
	res := &Resolution{
		Keys:     make(map[int][]byte),
		Failures: make(map[int]error),
	}
	if resp == nil {
		return res
	}

	hashes := make(map[int][]byte, len(resp.Wraps)+len(resp.ChainLinks))
	links := make(map[int][]byte, len(resp.ChainLinks))
	for _, l := range resp.ChainLinks {
		links[l.EpochNumber] = l.ChainLink
		if len(l.ConfirmationHash) > 0 {
			hashes[l.EpochNumber] = l.ConfirmationHash
		}
	}
	for _, w := range resp.Wraps {
		if len(w.ConfirmationHash) > 0 {
			hashes[w.EpochNumber] = w.ConfirmationHash
		}
	}

	wraps := append([]models.WrapEntry(nil), resp.Wraps...)
	sort.Slice(wraps, func(i, j int) bool { return wraps[i].EpochNumber > wraps[j].EpochNumber })

	for _, w := range wraps {
		floor := w.VisibleFromEpoch
		if floor < 1 {
			floor = 1
		}
		if w.EpochNumber < floor || (resp.CurrentEpoch > 0 && w.EpochNumber > resp.CurrentEpoch) {
			res.Failures[w.EpochNumber] = apperrors.ErrInvalidEpoch
			continue
		}
		if _, done := res.Keys[w.EpochNumber]; done {
			continue
		}

		key, err := crypto.UnwrapKey(memberPrivateKey, w.Wrap)
		if err != nil {
			res.Failures[w.EpochNumber] = apperrors.CryptoFailure("unwrap failed", err)
			continue
		}
		if err := confirm(w.EpochNumber, key, hashes); err != nil {
			res.Failures[w.EpochNumber] = err
			continue
		}
		res.Keys[w.EpochNumber] = key
		delete(res.Failures, w.EpochNumber)

		walkBack(res, w.EpochNumber, floor, key, links, hashes)
	}
	return res
}

func walkBack(res *Resolution, from, floor int, key []byte, links, hashes map[int][]byte) {
	for n := from; n-1 >= floor; n-- {
		if _, done := res.Keys[n-1]; done {
			return
		}
		link, ok := links[n]
		if !ok || len(link) == 0 {
			return
		}
		prev, err := crypto.FollowChainLink(key, n, link)
		if err != nil {
			res.Failures[n-1] = apperrors.CryptoFailure("chain link derivation failed", err)
			return
		}
		if err := confirm(n-1, prev, hashes); err != nil {
			res.Failures[n-1] = err
			return
		}
		res.Keys[n-1] = prev
		key = prev
	}
}

// confirm enforces the confirmation hash when one is known for the epoch.
func confirm(epoch int, key []byte, hashes map[int][]byte) error {
	hash, ok := hashes[epoch]
	if !ok {
		return nil
	}
	if !crypto.VerifyConfirmation(epoch, key, hash) {
		return apperrors.ErrConfirmationMismatch
	}
	return nil
}
