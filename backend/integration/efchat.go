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

// Package integration embeds the epoch-keyed conversation API into an
// existing efchat router.
package integration

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efepoch/backend/handlers"
	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/storage"
	"github.com/efchatnet/efepoch/backend/storage/memory"
	"github.com/efchatnet/efepoch/backend/storage/postgres"
	redisfeed "github.com/efchatnet/efepoch/backend/storage/redis"
)

// E2EIntegration provides the conversation API as a plugin for efchat.
type E2EIntegration struct {
	store  storage.Store
	feed   storage.RotationFeed
	pinger pinger
	logger *log.Logger

	conversationHandler *handlers.ConversationHandler
	keyChainHandler     *handlers.KeyChainHandler
	memberHandler       *handlers.MemberHandler
	messageHandler      *handlers.MessageHandler
	eventHandler        *handlers.EventHandler

	jwtSecret string
	jwtIssuer string
}

// Config holds configuration for the integration. With DB nil the in-process
// store is used; with Redis nil rotation events stay within the process.
type Config struct {
	DB             *sql.DB
	Redis          *redis.Client
	JWTSecret      string
	JWTIssuer      string
	AllowedOrigins []string
	PageSize       int
	Logger         *log.Logger
}

type pinger interface {
	Ping(ctx context.Context) error
}

// NewE2EIntegration runs migrations when backed by postgres.
func NewE2EIntegration(ctx context.Context, config *Config) (*E2EIntegration, error) {
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	e := &E2EIntegration{
		logger:    logger.With("component", "integration"),
		jwtSecret: config.JWTSecret,
		jwtIssuer: config.JWTIssuer,
	}

	if config.DB != nil {
		pg := postgres.NewStore(config.DB, logger)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		e.store = pg
		e.pinger = pg
	} else {
		e.store = memory.NewStore()
	}

	if config.Redis != nil {
		e.feed = redisfeed.NewRotationFeed(config.Redis, logger)
		e.pinger = multiPinger{e.pinger, redisPinger{config.Redis}}
	} else {
		e.feed = memory.NewFeed()
	}

	e.conversationHandler = handlers.NewConversationHandler(e.store, logger)
	e.keyChainHandler = handlers.NewKeyChainHandler(e.store, e.feed, logger)
	e.memberHandler = handlers.NewMemberHandler(e.store, logger)
	e.messageHandler = handlers.NewMessageHandler(e.store, config.PageSize, logger)
	e.eventHandler = handlers.NewEventHandler(e.store, e.feed, config.AllowedOrigins, logger)
	return e, nil
}

// RegisterRoutes adds the API under /api/e2e. If authMiddleware is nil the
// built-in JWT validation is used.
func (e *E2EIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/e2e").Subrouter()

	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(e.jwtSecret, e.jwtIssuer))
	}

	conv := "/conversations/{conversationId}"

	api.HandleFunc("/conversations", e.conversationHandler.CreateConversation).Methods("POST", "OPTIONS")
	api.HandleFunc(conv, e.conversationHandler.GetConversation).Methods("GET", "OPTIONS")

	// Key chain and rotation
	api.HandleFunc(conv+"/keychain", e.keyChainHandler.GetKeyChain).Methods("GET", "OPTIONS")
	api.HandleFunc(conv+"/members/keys", e.keyChainHandler.GetMemberKeys).Methods("GET", "OPTIONS")
	api.HandleFunc(conv+"/rotations", e.keyChainHandler.SubmitRotation).Methods("POST", "OPTIONS")

	// Membership and share links
	api.HandleFunc(conv+"/members", e.memberHandler.AddMember).Methods("POST", "OPTIONS")
	api.HandleFunc(conv+"/members/{memberId}", e.memberHandler.RemoveMember).Methods("DELETE", "OPTIONS")
	api.HandleFunc(conv+"/members/{memberId}/privilege", e.memberHandler.ChangePrivilege).Methods("PUT", "OPTIONS")
	api.HandleFunc(conv+"/accept", e.memberHandler.AcceptInvitation).Methods("POST", "OPTIONS")
	api.HandleFunc(conv+"/links", e.memberHandler.CreateLink).Methods("POST", "OPTIONS")
	api.HandleFunc(conv+"/links/{linkId}", e.memberHandler.RevokeLink).Methods("DELETE", "OPTIONS")

	// Messages
	api.HandleFunc(conv+"/messages", e.messageHandler.SendMessage).Methods("POST", "OPTIONS")
	api.HandleFunc(conv+"/messages", e.messageHandler.GetMessages).Methods("GET", "OPTIONS")

	api.HandleFunc(conv+"/events", e.eventHandler.StreamRotations).Methods("GET")
}

// RegisterHealth adds an unauthenticated /health probe.
func (e *E2EIntegration) RegisterHealth(router *mux.Router) {
	router.HandleFunc("/health", e.health).Methods("GET")
}

func (e *E2EIntegration) health(w http.ResponseWriter, r *http.Request) {
	if e.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := e.pinger.Ping(ctx); err != nil {
			e.logger.Warn("health check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Backend unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// GetStore returns the underlying storage implementation.
func (e *E2EIntegration) GetStore() storage.Store {
	return e.store
}

// GetFeed returns the rotation feed, for hosts that fan events out themselves.
func (e *E2EIntegration) GetFeed() storage.RotationFeed {
	return e.feed
}

// ValidateSetup checks that the integration can serve requests.
func (e *E2EIntegration) ValidateSetup(ctx context.Context) error {
	if e.jwtSecret == "" {
		return &ValidationError{Message: "JWT secret is not configured"}
	}
	if e.pinger != nil {
		if err := e.pinger.Ping(ctx); err != nil {
			return &ValidationError{Message: "backend unreachable: " + err.Error()}
		}
	}
	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

type multiPinger []pinger

func (m multiPinger) Ping(ctx context.Context) error {
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}
