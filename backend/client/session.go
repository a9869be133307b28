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

package client

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/efchatnet/efepoch/backend/crypto"
	"github.com/efchatnet/efepoch/backend/epoch"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
)

// API is the server surface a Session needs. *Client implements it.
type API interface {
	epoch.Remote
	CreateConversation(ctx context.Context, req models.CreateConversationRequest) (*models.CreateConversationResponse, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	AddMember(ctx context.Context, conversationID string, req models.AddMemberRequest) (*models.Membership, error)
	RemoveMember(ctx context.Context, conversationID, memberID string) error
	ChangePrivilege(ctx context.Context, conversationID, memberID string, privilege models.Privilege) error
	AcceptInvitation(ctx context.Context, conversationID string) error
	CreateLink(ctx context.Context, conversationID string, req models.CreateLinkRequest) (*models.Membership, error)
	RevokeLink(ctx context.Context, conversationID, linkID string) error
	SendMessage(ctx context.Context, conversationID string, req models.SendMessageRequest) (*models.Message, error)
	GetMessages(ctx context.Context, conversationID string, after int64, limit int) ([]models.Message, error)
	SubscribeRotations(ctx context.Context, conversationID string) (<-chan models.RotationEvent, error)
}

type SessionConfig struct {
	UserID           string
	Identity         *crypto.KeyPair
	RotationAttempts int
	DecryptWorkers   int
	Logger           *log.Logger
}

// Session is one signed-in user's view of their conversations. Membership
// changes rotate the epoch right after they succeed; sending never does.
type Session struct {
	api         API
	userID      string
	identity    *crypto.KeyPair
	cache       *epoch.KeyCache
	coordinator *epoch.Coordinator
	pipeline    *epoch.Pipeline
	logger      *log.Logger
}

func NewSession(api API, cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	cache := epoch.NewKeyCache()
	return &Session{
		api:      api,
		userID:   cfg.UserID,
		identity: cfg.Identity,
		cache:    cache,
		coordinator: epoch.NewCoordinator(api, cache, cfg.Identity.PrivateKey,
			epoch.WithMaxAttempts(cfg.RotationAttempts), epoch.WithLogger(logger)),
		pipeline: epoch.NewPipeline(cache, cfg.DecryptWorkers),
		logger:   logger.With("component", "session", "user", cfg.UserID),
	}
}

// Cache exposes the key cache, e.g. to subscribe to key changes.
func (s *Session) Cache() *epoch.KeyCache {
	return s.cache
}

// CreateConversation starts a conversation owned by this user. The epoch-1
// key is cached once the server has stored it.
func (s *Session) CreateConversation(ctx context.Context, title, firstMessage string) (*models.CreateConversationResponse, error) {
	g, err := epoch.BuildGenesis(s.identity.PublicKey, title, firstMessage, models.SenderUser)
	if err != nil {
		return nil, err
	}
	resp, err := s.api.CreateConversation(ctx, g.Request)
	if err != nil {
		return nil, err
	}
	id := resp.Conversation.ConversationID
	s.cache.Set(id, 1, g.PrivateKey)
	s.cache.SetCurrentEpoch(id, 1)
	return resp, nil
}

// Refresh fetches and resolves the key chain. A fetch whose context ends
// before it returns leaves the cache untouched.
func (s *Session) Refresh(ctx context.Context, conversationID string) (*epoch.Resolution, error) {
	res, err := s.coordinator.Refresh(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for n, ferr := range res.Failures {
		s.logger.Warn("epoch key rejected", "conversation_id", conversationID, "epoch", n, "err", ferr)
	}
	return res, nil
}

// History returns decrypted messages after the given sequence. Messages
// that cannot be read come back as placeholders.
func (s *Session) History(ctx context.Context, conversationID string, after int64, limit int) ([]models.DecryptedMessage, error) {
	msgs, err := s.api.GetMessages(ctx, conversationID, after, limit)
	if err != nil {
		return nil, err
	}
	if s.missingKeys(conversationID, msgs) {
		if _, err := s.Refresh(ctx, conversationID); err != nil {
			return nil, err
		}
	}
	return s.pipeline.Decrypt(conversationID, msgs), nil
}

func (s *Session) missingKeys(conversationID string, msgs []models.Message) bool {
	for _, m := range msgs {
		if _, ok := s.cache.Get(conversationID, m.EpochNumber); !ok {
			return true
		}
	}
	return false
}

// Title decrypts the conversation title with the key of the epoch it was
// sealed under.
func (s *Session) Title(ctx context.Context, conversationID string) (string, error) {
	conv, err := s.api.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if len(conv.TitleCiphertext) == 0 {
		return "", apperrors.ErrMissingEpochKey
	}

	key, ok := s.cache.Get(conversationID, conv.TitleEpoch)
	if !ok {
		if _, err := s.Refresh(ctx, conversationID); err != nil {
			return "", err
		}
		if key, ok = s.cache.Get(conversationID, conv.TitleEpoch); !ok {
			return "", apperrors.ErrMissingEpochKey
		}
	}
	title, err := crypto.DecryptTitle(key, conv.TitleCiphertext)
	if err != nil {
		return "", apperrors.CryptoFailure("decrypt title", err)
	}
	return title, nil
}

// Send seals text under the current epoch. It never rotates.
func (s *Session) Send(ctx context.Context, conversationID, text string, senderType models.SenderType, cost *float64) (*models.Message, error) {
	n, key, ok := s.cache.CurrentKey(conversationID)
	if !ok {
		if _, err := s.Refresh(ctx, conversationID); err != nil {
			return nil, err
		}
		if n, key, ok = s.cache.CurrentKey(conversationID); !ok {
			return nil, apperrors.ErrMissingEpochKey
		}
	}

	pub, err := crypto.PublicKeyOf(key)
	if err != nil {
		return nil, apperrors.CryptoFailure("derive epoch public key", err)
	}
	ct, err := crypto.EncryptMessage(pub, text)
	if err != nil {
		return nil, apperrors.CryptoFailure("encrypt message", err)
	}
	return s.api.SendMessage(ctx, conversationID, models.SendMessageRequest{
		EpochNumber: n,
		SenderType:  senderType,
		Ciphertext:  ct,
		Cost:        cost,
	})
}

func (s *Session) AddMember(ctx context.Context, conversationID string, req models.AddMemberRequest) (*models.Membership, error) {
	m, err := s.api.AddMember(ctx, conversationID, req)
	if err != nil {
		return nil, err
	}
	if err := s.rotate(ctx, conversationID, "add member"); err != nil {
		return m, err
	}
	return m, nil
}

// RemoveMember rotates so the removed member cannot read what follows. A
// member removing themselves cannot rotate and just forgets the keys.
func (s *Session) RemoveMember(ctx context.Context, conversationID, memberID string) error {
	if err := s.api.RemoveMember(ctx, conversationID, memberID); err != nil {
		return err
	}
	if memberID == s.userID {
		s.cache.ClearConversation(conversationID)
		s.pipeline.Forget(conversationID)
		return nil
	}
	return s.rotate(ctx, conversationID, "remove member")
}

func (s *Session) ChangePrivilege(ctx context.Context, conversationID, memberID string, privilege models.Privilege) error {
	if err := s.api.ChangePrivilege(ctx, conversationID, memberID, privilege); err != nil {
		return err
	}
	return s.rotate(ctx, conversationID, "change privilege")
}

func (s *Session) CreateLink(ctx context.Context, conversationID string, req models.CreateLinkRequest) (*models.Membership, error) {
	link, err := s.api.CreateLink(ctx, conversationID, req)
	if err != nil {
		return nil, err
	}
	if err := s.rotate(ctx, conversationID, "create link"); err != nil {
		return link, err
	}
	return link, nil
}

func (s *Session) RevokeLink(ctx context.Context, conversationID, linkID string) error {
	if err := s.api.RevokeLink(ctx, conversationID, linkID); err != nil {
		return err
	}
	return s.rotate(ctx, conversationID, "revoke link")
}

// Accept marks an invitation as accepted and loads the keys it grants.
func (s *Session) Accept(ctx context.Context, conversationID string) error {
	if err := s.api.AcceptInvitation(ctx, conversationID); err != nil {
		return err
	}
	_, err := s.Refresh(ctx, conversationID)
	return err
}

// Rotate advances the epoch without a membership change.
func (s *Session) Rotate(ctx context.Context, conversationID string) (*models.RotationResult, error) {
	title, err := s.Title(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.coordinator.Rotate(ctx, conversationID, title)
}

func (s *Session) rotate(ctx context.Context, conversationID, action string) error {
	res, err := s.Rotate(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("%s succeeded but rotation failed: %w", action, err)
	}
	s.logger.Info("epoch rotated", "conversation_id", conversationID, "epoch", res.EpochNumber, "action", action)
	return nil
}

// WatchRotations refreshes the key chain whenever another member rotates,
// then forwards the event. The channel closes when ctx ends or the stream
// drops.
func (s *Session) WatchRotations(ctx context.Context, conversationID string) (<-chan models.RotationEvent, error) {
	events, err := s.api.SubscribeRotations(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	out := make(chan models.RotationEvent, 16)
	go func() {
		defer close(out)
		for event := range events {
			if current, ok := s.cache.CurrentEpoch(conversationID); !ok || event.EpochNumber > current {
				if _, err := s.Refresh(ctx, conversationID); err != nil {
					s.logger.Warn("refresh after rotation failed", "conversation_id", conversationID, "err", err)
				}
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Logout drops every cached key.
func (s *Session) Logout() {
	s.cache.Clear()
}
