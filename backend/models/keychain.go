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

package models

// WrapEntry is a wrap as seen by its holder.
type WrapEntry struct {
	EpochNumber      int    `json:"epoch_number"`
	Wrap             []byte `json:"wrap"`
	ConfirmationHash []byte `json:"confirmation_hash"`
	VisibleFromEpoch int    `json:"visible_from_epoch"`
}

// ChainLinkEntry lets the holder of EpochNumber's private key derive the
// private key of EpochNumber-1. ConfirmationHash belongs to EpochNumber.
type ChainLinkEntry struct {
	EpochNumber      int    `json:"epoch_number"`
	ChainLink        []byte `json:"chain_link"`
	ConfirmationHash []byte `json:"confirmation_hash"`
}

// KeyChainResponse is already filtered to what the requesting membership may see.
type KeyChainResponse struct {
	Wraps        []WrapEntry      `json:"wraps"`
	ChainLinks   []ChainLinkEntry `json:"chain_links"`
	CurrentEpoch int              `json:"current_epoch"`
}

type MemberWrapRequest struct {
	MemberPublicKey []byte `json:"member_public_key"`
	Wrap            []byte `json:"wrap"`
}

type RotationRequest struct {
	ExpectedEpoch    int                 `json:"expected_epoch"`
	EpochPublicKey   []byte              `json:"epoch_public_key"`
	ConfirmationHash []byte              `json:"confirmation_hash"`
	ChainLink        []byte              `json:"chain_link"`
	EncryptedTitle   []byte              `json:"encrypted_title"`
	MemberWraps      []MemberWrapRequest `json:"member_wraps"`
}

type RotationResult struct {
	ConversationID string `json:"conversation_id"`
	EpochNumber    int    `json:"epoch_number"`
}

// RotationEvent is published after a rotation commits so other members
// know to refresh their key chains.
type RotationEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	EpochNumber    int    `json:"epoch_number"`
	RotatedBy      string `json:"rotated_by"`
}
