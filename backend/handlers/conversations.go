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
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

type ConversationHandler struct {
	store  storage.ConversationStore
	logger *log.Logger
}

func NewConversationHandler(store storage.ConversationStore, logger *log.Logger) *ConversationHandler {
	return &ConversationHandler{store: store, logger: logger.With("component", "conversations")}
}

// CreateConversation starts a conversation at epoch 1 with the caller as owner.
// POST /api/e2e/conversations
func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req models.CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	conv, first, err := h.store.CreateConversation(r.Context(), userID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("conversation created", "conversation_id", conv.ConversationID, "owner", userID)
	writeJSON(w, http.StatusCreated, models.CreateConversationResponse{
		Conversation: conv,
		FirstMessage: first,
	})
}

// GetConversation
// GET /api/e2e/conversations/{conversationId}
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	conv, err := h.store.GetConversation(r.Context(), mux.Vars(r)["conversationId"], userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
