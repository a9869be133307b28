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
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

type MessageHandler struct {
	store    storage.MessageStore
	pageSize int
	logger   *log.Logger
}

// NewMessageHandler caps history pages at pageSize messages.
func NewMessageHandler(store storage.MessageStore, pageSize int, logger *log.Logger) *MessageHandler {
	if pageSize <= 0 {
		pageSize = storage.DefaultMessageLimit
	}
	return &MessageHandler{store: store, pageSize: pageSize, logger: logger.With("component", "messages")}
}

// SendMessage stores a message sealed under an epoch the sender can see.
// POST /api/e2e/conversations/{conversationId}/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	msg, err := h.store.SaveMessage(r.Context(), mux.Vars(r)["conversationId"], userID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// GetMessages returns history above the caller's visibility floor.
// GET /api/e2e/conversations/{conversationId}/messages?after=0&limit=100
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	var after int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, h.logger, apperrors.InvalidArg("after must be a non-negative sequence"))
			return
		}
		after = n
	}
	limit := h.pageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, h.logger, apperrors.InvalidArg("limit must be positive"))
			return
		}
		if n < limit {
			limit = n
		}
	}

	msgs, err := h.store.GetMessages(r.Context(), mux.Vars(r)["conversationId"], userID, after, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageList{Messages: msgs})
}
