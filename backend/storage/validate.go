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

package storage

import (
	"github.com/efchatnet/efepoch/backend/crypto"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
)

// Validation shared by every Store implementation, so the visibility and
// rotation rules cannot drift between them.

func ValidateCreateConversation(founderID string, req models.CreateConversationRequest) error {
	if founderID == "" {
		return apperrors.InvalidArg("founder is required")
	}
	if err := crypto.ValidatePublicKey(req.FounderPublicKey); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid founder public key", err)
	}
	if err := crypto.ValidatePublicKey(req.EpochPublicKey); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid epoch public key", err)
	}
	if len(req.ConfirmationHash) == 0 || len(req.FounderWrap) == 0 || len(req.EncryptedTitle) == 0 {
		return apperrors.InvalidArg("confirmation hash, founder wrap and title are required")
	}
	if req.FirstMessage.EpochNumber != 1 {
		return apperrors.ErrInvalidEpoch
	}
	return ValidateMessage(req.FirstMessage)
}

func ValidateMessage(req models.SendMessageRequest) error {
	if req.EpochNumber < 1 {
		return apperrors.ErrInvalidEpoch
	}
	if len(req.Ciphertext) == 0 {
		return apperrors.InvalidArg("ciphertext is required")
	}
	switch req.SenderType {
	case models.SenderUser, models.SenderAI:
	default:
		return apperrors.InvalidArg("unknown sender type")
	}
	if req.Cost != nil && *req.Cost < 0 {
		return apperrors.InvalidArg("cost cannot be negative")
	}
	return nil
}

// ValidateRotation checks the request shape before any store state is read.
func ValidateRotation(req models.RotationRequest) error {
	if req.ExpectedEpoch < 1 {
		return apperrors.ErrInvalidEpoch
	}
	if err := crypto.ValidatePublicKey(req.EpochPublicKey); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid epoch public key", err)
	}
	if len(req.ConfirmationHash) == 0 || len(req.ChainLink) == 0 || len(req.EncryptedTitle) == 0 {
		return apperrors.InvalidArg("confirmation hash, chain link and title are required")
	}
	if len(req.MemberWraps) == 0 {
		return apperrors.ErrNoMembers
	}
	seen := make(map[string]struct{}, len(req.MemberWraps))
	for _, w := range req.MemberWraps {
		if len(w.MemberPublicKey) == 0 || len(w.Wrap) == 0 {
			return apperrors.InvalidArg("member wrap is incomplete")
		}
		k := string(w.MemberPublicKey)
		if _, dup := seen[k]; dup {
			return apperrors.InvalidArg("member key wrapped twice")
		}
		seen[k] = struct{}{}
	}
	return nil
}

// MatchWraps checks that the wraps cover exactly the active member keys.
func MatchWraps(active []models.MemberKey, wraps []models.MemberWrapRequest) error {
	want := make(map[string]struct{}, len(active))
	for _, m := range active {
		want[string(m.PublicKey)] = struct{}{}
	}
	for _, w := range wraps {
		if _, ok := want[string(w.MemberPublicKey)]; !ok {
			return apperrors.ErrUnknownMemberWrap
		}
		delete(want, string(w.MemberPublicKey))
	}
	if len(want) > 0 {
		return apperrors.ErrMissingMemberWrap
	}
	return nil
}

func ValidateGrant(publicKey []byte, privilege models.Privilege, history models.HistoryGrant) error {
	if err := crypto.ValidatePublicKey(publicKey); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid member public key", err)
	}
	if !privilege.Valid() || privilege == models.PrivilegeOwner {
		return apperrors.ErrInvalidPrivilege
	}
	switch history {
	case models.HistoryFull, models.HistoryNone:
	default:
		return apperrors.InvalidArg("unknown history grant")
	}
	return nil
}

// VisibleFrom is the floor a new member gets: everything, or only epochs
// created after they were added.
func VisibleFrom(history models.HistoryGrant, currentEpoch int) int {
	if history == models.HistoryFull {
		return 1
	}
	return currentEpoch + 1
}

// CanManage reports whether actor may change target's membership.
func CanManage(actor *models.Membership, target *models.Membership) error {
	if !actor.Privilege.AtLeast(models.PrivilegeAdmin) {
		return apperrors.ErrPrivilege
	}
	if target != nil && target.Privilege == models.PrivilegeOwner {
		return apperrors.ErrOwnerImmutable
	}
	return nil
}

// FilterKeyChain applies the visibility floor to the raw epoch rows of a
// conversation. wrap is the requester's own wrap, if any.
func FilterKeyChain(floor, current int, wrap *models.MemberWrap, epochs []models.Epoch) *models.KeyChainResponse {
	resp := &models.KeyChainResponse{
		Wraps:        []models.WrapEntry{},
		ChainLinks:   []models.ChainLinkEntry{},
		CurrentEpoch: current,
	}
	hashes := make(map[int][]byte, len(epochs))
	for _, e := range epochs {
		hashes[e.EpochNumber] = e.ConfirmationHash
	}
	if wrap != nil && wrap.EpochNumber >= floor && wrap.EpochNumber <= current {
		resp.Wraps = append(resp.Wraps, models.WrapEntry{
			EpochNumber:      wrap.EpochNumber,
			Wrap:             wrap.Wrap,
			ConfirmationHash: hashes[wrap.EpochNumber],
			VisibleFromEpoch: wrap.VisibleFromEpoch,
		})
	}
	for _, e := range epochs {
		if len(e.ChainLink) == 0 || e.EpochNumber-1 < floor || e.EpochNumber > current {
			continue
		}
		resp.ChainLinks = append(resp.ChainLinks, models.ChainLinkEntry{
			EpochNumber:      e.EpochNumber,
			ChainLink:        e.ChainLink,
			ConfirmationHash: e.ConfirmationHash,
		})
	}
	return resp
}
