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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage/mocks"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func request(method, target, body, userID string, vars map[string]string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	return mux.SetURLVars(req, vars)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.AppError {
	t.Helper()
	var body apperrors.AppError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestSubmitRotationPublishesEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	feed := mocks.NewMockRotationFeed(ctrl)
	h := NewKeyChainHandler(store, feed, quietLogger())

	store.EXPECT().SubmitRotation(gomock.Any(), "c1", "alice", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, req models.RotationRequest) (*models.RotationResult, error) {
			assert.Equal(t, 1, req.ExpectedEpoch)
			return &models.RotationResult{ConversationID: "c1", EpochNumber: 2}, nil
		})
	feed.EXPECT().PublishRotation(gomock.Any(), models.RotationEvent{
		Type:           RotationEventType,
		ConversationID: "c1",
		EpochNumber:    2,
		RotatedBy:      "alice",
	}).Return(nil)

	rec := httptest.NewRecorder()
	h.SubmitRotation(rec, request(http.MethodPost, "/", `{"expected_epoch":1}`, "alice", map[string]string{"conversationId": "c1"}))

	require.Equal(t, http.StatusOK, rec.Code)
	var res models.RotationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 2, res.EpochNumber)
}

func TestSubmitRotationSurvivesFeedFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	feed := mocks.NewMockRotationFeed(ctrl)
	h := NewKeyChainHandler(store, feed, quietLogger())

	store.EXPECT().SubmitRotation(gomock.Any(), "c1", "alice", gomock.Any()).
		Return(&models.RotationResult{ConversationID: "c1", EpochNumber: 2}, nil)
	feed.EXPECT().PublishRotation(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	rec := httptest.NewRecorder()
	h.SubmitRotation(rec, request(http.MethodPost, "/", `{"expected_epoch":1}`, "alice", map[string]string{"conversationId": "c1"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitRotationErrors(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		status   int
		code     apperrors.Code
	}{
		{"stale epoch", apperrors.ErrStaleEpoch, http.StatusConflict, apperrors.CodeStaleEpoch},
		{"not a member", apperrors.ErrNotFound, http.StatusNotFound, apperrors.CodeNotFound},
		{"reader", apperrors.ErrPrivilege, http.StatusForbidden, apperrors.CodePermissionDenied},
		{"membership changed", apperrors.ErrMissingMemberWrap, http.StatusConflict, apperrors.CodeStaleMembers},
		{"bad request", apperrors.ErrNoMembers, http.StatusBadRequest, apperrors.CodeInvalidArgument},
		{"database", errors.New("connection reset"), http.StatusInternalServerError, apperrors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockStore(ctrl)
			feed := mocks.NewMockRotationFeed(ctrl)
			h := NewKeyChainHandler(store, feed, quietLogger())

			store.EXPECT().SubmitRotation(gomock.Any(), "c1", "alice", gomock.Any()).Return(nil, tt.storeErr)

			rec := httptest.NewRecorder()
			h.SubmitRotation(rec, request(http.MethodPost, "/", `{"expected_epoch":1}`, "alice", map[string]string{"conversationId": "c1"}))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.NotContains(t, body.Message, "connection reset")
		})
	}
}

func TestHandlersRequireUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	h := NewConversationHandler(store, quietLogger())

	rec := httptest.NewRecorder()
	h.GetConversation(rec, request(http.MethodGet, "/", "", "", map[string]string{"conversationId": "c1"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateConversationRejectsBadBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	h := NewConversationHandler(store, quietLogger())

	rec := httptest.NewRecorder()
	h.CreateConversation(rec, request(http.MethodPost, "/", `{not json`, "alice", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeInvalidArgument, decodeError(t, rec).Code)
}

func TestGetMessagesPaging(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	h := NewMessageHandler(store, 50, quietLogger())
	vars := map[string]string{"conversationId": "c1"}

	store.EXPECT().GetMessages(gomock.Any(), "c1", "alice", int64(3), 50).Return([]models.Message{{MessageID: "m4", Sequence: 4}}, nil)
	rec := httptest.NewRecorder()
	h.GetMessages(rec, request(http.MethodGet, "/?after=3&limit=500", "", "alice", vars))
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.MessageList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "m4", list.Messages[0].MessageID)

	store.EXPECT().GetMessages(gomock.Any(), "c1", "alice", int64(0), 10).Return([]models.Message{}, nil)
	rec = httptest.NewRecorder()
	h.GetMessages(rec, request(http.MethodGet, "/?limit=10", "", "alice", vars))
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, q := range []string{"/?after=-1", "/?after=x", "/?limit=0"} {
		rec = httptest.NewRecorder()
		h.GetMessages(rec, request(http.MethodGet, q, "", "alice", vars))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestMemberHandlerStatuses(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	h := NewMemberHandler(store, quietLogger())
	vars := map[string]string{"conversationId": "c1", "memberId": "bob", "linkId": "l1"}

	store.EXPECT().AddMember(gomock.Any(), "c1", "alice", models.AddMemberRequest{
		MemberID: "bob", Privilege: models.PrivilegeWrite, History: models.HistoryNone,
	}).Return(&models.Membership{MemberID: "bob", VisibleFromEpoch: 4}, nil)
	rec := httptest.NewRecorder()
	h.AddMember(rec, request(http.MethodPost, "/", `{"member_id":"bob","privilege":"write","history":"none"}`, "alice", vars))
	assert.Equal(t, http.StatusCreated, rec.Code)

	store.EXPECT().RemoveMember(gomock.Any(), "c1", "alice", "bob").Return(nil)
	rec = httptest.NewRecorder()
	h.RemoveMember(rec, request(http.MethodDelete, "/", "", "alice", vars))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	store.EXPECT().ChangePrivilege(gomock.Any(), "c1", "alice", "bob", models.PrivilegeRead).Return(apperrors.ErrOwnerImmutable)
	rec = httptest.NewRecorder()
	h.ChangePrivilege(rec, request(http.MethodPut, "/", `{"privilege":"read"}`, "alice", vars))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	store.EXPECT().RevokeLink(gomock.Any(), "c1", "alice", "l1").Return(apperrors.ErrNotFound)
	rec = httptest.NewRecorder()
	h.RevokeLink(rec, request(http.MethodDelete, "/", "", "alice", vars))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	store.EXPECT().AcceptMembership(gomock.Any(), "c1", "alice").Return(nil)
	rec = httptest.NewRecorder()
	h.AcceptInvitation(rec, request(http.MethodPost, "/", "", "alice", vars))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStreamRotationsRejectsNonMembers(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	feed := mocks.NewMockRotationFeed(ctrl)
	h := NewEventHandler(store, feed, nil, quietLogger())

	store.EXPECT().GetConversation(gomock.Any(), "c1", "mallory").Return(nil, apperrors.ErrNotFound)

	rec := httptest.NewRecorder()
	h.StreamRotations(rec, request(http.MethodGet, "/", "", "mallory", map[string]string{"conversationId": "c1"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
