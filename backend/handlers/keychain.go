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

package handlers

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

// RotationEventType is the Type of events published after a rotation commits.
const RotationEventType = "epoch_rotated"

type KeyChainStore interface {
	storage.EpochStore
	GetMemberKeys(ctx context.Context, conversationID, requesterID string) ([]models.MemberKey, error)
}

type KeyChainHandler struct {
	store  KeyChainStore
	feed   storage.RotationFeed
	logger *log.Logger
}

func NewKeyChainHandler(store KeyChainStore, feed storage.RotationFeed, logger *log.Logger) *KeyChainHandler {
	return &KeyChainHandler{store: store, feed: feed, logger: logger.With("component", "keychain")}
}

// GetKeyChain returns the caller's wrap and the chain links their floor allows.
// GET /api/e2e/conversations/{conversationId}/keychain
func (h *KeyChainHandler) GetKeyChain(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	resp, err := h.store.GetKeyChain(r.Context(), mux.Vars(r)["conversationId"], userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMemberKeys lists the public keys a rotation must wrap to.
// GET /api/e2e/conversations/{conversationId}/members/keys
func (h *KeyChainHandler) GetMemberKeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	members, err := h.store.GetMemberKeys(r.Context(), mux.Vars(r)["conversationId"], userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MemberKeysResponse{Members: members})
}

// SubmitRotation answers 409 when the expected epoch is no longer current.
// POST /api/e2e/conversations/{conversationId}/rotations
func (h *KeyChainHandler) SubmitRotation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	conversationID := mux.Vars(r)["conversationId"]

	var req models.RotationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.store.SubmitRotation(r.Context(), conversationID, userID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Members that miss the event catch up on their next key-chain fetch.
	event := models.RotationEvent{
		Type:           RotationEventType,
		ConversationID: conversationID,
		EpochNumber:    result.EpochNumber,
		RotatedBy:      userID,
	}
	if err := h.feed.PublishRotation(r.Context(), event); err != nil {
		h.logger.Warn("publish rotation failed", "conversation_id", conversationID, "epoch", result.EpochNumber, "err", err)
	}

	writeJSON(w, http.StatusOK, result)
}
