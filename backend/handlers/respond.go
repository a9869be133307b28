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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/middleware"
)

// maxBodyBytes bounds request bodies; a rotation carries one wrap per member.
const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the AppError's code and message. Anything that is
// not a client error is logged and reported as internal.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()

	body := apperrors.AppError{Code: code, Message: err.Error()}
	var app *apperrors.AppError
	if errors.As(err, &app) {
		body.Message = app.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "err", err)
		body = apperrors.AppError{Code: apperrors.CodeInternal, Message: "internal error"}
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.InvalidArg("invalid request body")
	}
	return nil
}

func requireUser(w http.ResponseWriter, r *http.Request, logger *log.Logger) (string, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		writeError(w, logger, apperrors.Unauthorized("unauthorized"))
		return "", false
	}
	return userID, true
}
