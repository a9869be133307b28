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

package integration

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efepoch/backend/middleware"
)

const testSecret = "integration-secret"

func newTestIntegration(t *testing.T, secret string) (*E2EIntegration, *mux.Router) {
	t.Helper()
	e, err := NewE2EIntegration(context.Background(), &Config{
		JWTSecret: secret,
		JWTIssuer: "efchat",
		PageSize:  100,
		Logger:    log.New(io.Discard),
	})
	require.NoError(t, err)
	r := mux.NewRouter()
	e.RegisterRoutes(r, nil)
	e.RegisterHealth(r)
	return e, r
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	e, r := newTestIntegration(t, testSecret)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	e.pinger = multiPinger{nil, failingPinger{}}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestValidateSetup(t *testing.T) {
	e, _ := newTestIntegration(t, testSecret)
	require.NoError(t, e.ValidateSetup(context.Background()))

	e.pinger = failingPinger{}
	var verr *ValidationError
	require.ErrorAs(t, e.ValidateSetup(context.Background()), &verr)
	assert.Contains(t, verr.Message, "connection refused")

	unsigned, _ := newTestIntegration(t, "")
	require.ErrorAs(t, unsigned.ValidateSetup(context.Background()), &verr)
}

func TestRoutesRequireToken(t *testing.T) {
	_, r := newTestIntegration(t, testSecret)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/e2e/conversations/c1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := middleware.IssueToken(testSecret, middleware.Claims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "efchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/e2e/conversations/c1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	// Authenticated, but not a member of anything.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
