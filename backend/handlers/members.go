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

// MemberHandler changes membership. None of these rotate the epoch; the
// acting client rotates right after a successful change.
type MemberHandler struct {
	store  storage.MembershipStore
	logger *log.Logger
}

func NewMemberHandler(store storage.MembershipStore, logger *log.Logger) *MemberHandler {
	return &MemberHandler{store: store, logger: logger.With("component", "members")}
}

// AddMember
// POST /api/e2e/conversations/{conversationId}/members
func (h *MemberHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	conversationID := mux.Vars(r)["conversationId"]

	var req models.AddMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	m, err := h.store.AddMember(r.Context(), conversationID, userID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("member added", "conversation_id", conversationID, "member", m.MemberID,
		"privilege", m.Privilege, "visible_from_epoch", m.VisibleFromEpoch)
	writeJSON(w, http.StatusCreated, m)
}

// RemoveMember also serves a member leaving on their own.
// DELETE /api/e2e/conversations/{conversationId}/members/{memberId}
func (h *MemberHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	if err := h.store.RemoveMember(r.Context(), vars["conversationId"], userID, vars["memberId"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("member removed", "conversation_id", vars["conversationId"], "member", vars["memberId"], "by", userID)
	w.WriteHeader(http.StatusNoContent)
}

// ChangePrivilege
// PUT /api/e2e/conversations/{conversationId}/members/{memberId}/privilege
func (h *MemberHandler) ChangePrivilege(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	var req models.ChangePrivilegeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.store.ChangePrivilege(r.Context(), vars["conversationId"], userID, vars["memberId"], req.Privilege); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcceptInvitation
// POST /api/e2e/conversations/{conversationId}/accept
func (h *MemberHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.store.AcceptMembership(r.Context(), mux.Vars(r)["conversationId"], userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateLink creates a share-link membership; its id is the link id.
// POST /api/e2e/conversations/{conversationId}/links
func (h *MemberHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	conversationID := mux.Vars(r)["conversationId"]

	var req models.CreateLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	link, err := h.store.CreateLink(r.Context(), conversationID, userID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("share link created", "conversation_id", conversationID, "link", link.MemberID)
	writeJSON(w, http.StatusCreated, link)
}

// RevokeLink
// DELETE /api/e2e/conversations/{conversationId}/links/{linkId}
func (h *MemberHandler) RevokeLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	if err := h.store.RevokeLink(r.Context(), vars["conversationId"], userID, vars["linkId"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("share link revoked", "conversation_id", vars["conversationId"], "link", vars["linkId"])
	w.WriteHeader(http.StatusNoContent)
}
