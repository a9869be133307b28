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

// Package memory is a process-local Store. It applies the same visibility
// and compare-and-swap rules as the postgres store and backs the tests and
// single-node deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

type conversation struct {
	meta     models.Conversation
	epochs   []models.Epoch // epochs[i].EpochNumber == i+1
	members  map[string]*models.Membership
	wraps    map[string]models.MemberWrap // by member public key
	messages []models.Message
}

type Store struct {
	mu            sync.Mutex
	conversations map[string]*conversation
	now           func() time.Time
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*conversation),
		now:           time.Now,
	}
}

// member returns the active membership or nil. Callers hold s.mu.
func (s *Store) member(conversationID, memberID string) (*conversation, *models.Membership) {
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	m, ok := c.members[memberID]
	if !ok || !m.Active() {
		return c, nil
	}
	return c, m
}

func (s *Store) CreateConversation(ctx context.Context, founderID string, req models.CreateConversationRequest) (*models.Conversation, *models.Message, error) {
	if err := storage.ValidateCreateConversation(founderID, req); err != nil {
		return nil, nil, err
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[req.ConversationID]; exists {
		return nil, nil, apperrors.InvalidArg("conversation already exists")
	}
	now := s.now()
	c := &conversation{
		meta: models.Conversation{
			ConversationID:  req.ConversationID,
			CurrentEpoch:    1,
			TitleCiphertext: req.EncryptedTitle,
			TitleEpoch:      1,
			CreatedBy:       founderID,
			CreatedAt:       now,
		},
		epochs: []models.Epoch{{
			ConversationID:   req.ConversationID,
			EpochNumber:      1,
			PublicKey:        req.EpochPublicKey,
			ConfirmationHash: req.ConfirmationHash,
			CreatedBy:        founderID,
			CreatedAt:        now,
		}},
		members: map[string]*models.Membership{
			founderID: {
				ConversationID:   req.ConversationID,
				MemberID:         founderID,
				Kind:             models.MemberKindUser,
				PublicKey:        req.FounderPublicKey,
				Privilege:        models.PrivilegeOwner,
				VisibleFromEpoch: 1,
				JoinedAt:         now,
				AcceptedAt:       &now,
			},
		},
		wraps: map[string]models.MemberWrap{
			string(req.FounderPublicKey): {
				ConversationID:   req.ConversationID,
				EpochNumber:      1,
				MemberPublicKey:  req.FounderPublicKey,
				Wrap:             req.FounderWrap,
				VisibleFromEpoch: 1,
			},
		},
	}
	msg := s.appendMessage(c, founderID, req.FirstMessage)
	s.conversations[req.ConversationID] = c

	conv := c.meta
	return &conv, &msg, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID, requesterID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, m := s.member(conversationID, requesterID)
	if m == nil {
		return nil, apperrors.ErrNotFound
	}
	conv := c.meta
	if conv.TitleEpoch < m.VisibleFromEpoch {
		// The title is sealed under an epoch the requester may not resolve.
		conv.TitleCiphertext = nil
	}
	return &conv, nil
}

func (s *Store) AddMember(ctx context.Context, conversationID, actorID string, req models.AddMemberRequest) (*models.Membership, error) {
	if req.MemberID == "" {
		return nil, apperrors.InvalidArg("member_id is required")
	}
	if err := storage.ValidateGrant(req.PublicKey, req.Privilege, req.History); err != nil {
		return nil, err
	}
	return s.addMembership(conversationID, actorID, req.MemberID, models.MemberKindUser, req.PublicKey, req.Privilege, req.History)
}

func (s *Store) CreateLink(ctx context.Context, conversationID, actorID string, req models.CreateLinkRequest) (*models.Membership, error) {
	if err := storage.ValidateGrant(req.PublicKey, req.Privilege, req.History); err != nil {
		return nil, err
	}
	return s.addMembership(conversationID, actorID, uuid.New().String(), models.MemberKindLink, req.PublicKey, req.Privilege, req.History)
}

func (s *Store) addMembership(conversationID, actorID, memberID string, kind models.MemberKind, publicKey []byte, privilege models.Privilege, history models.HistoryGrant) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, actor := s.member(conversationID, actorID)
	if actor == nil {
		return nil, apperrors.ErrNotFound
	}
	if err := storage.CanManage(actor, nil); err != nil {
		return nil, err
	}
	if _, exists := c.members[memberID]; exists {
		// Revoked memberships are never revived; a returning member needs a new identity row.
		return nil, apperrors.ErrAlreadyMember
	}
	for _, m := range c.members {
		if m.Active() && string(m.PublicKey) == string(publicKey) {
			return nil, apperrors.InvalidArg("public key already belongs to a member")
		}
	}
	m := &models.Membership{
		ConversationID:   conversationID,
		MemberID:         memberID,
		Kind:             kind,
		PublicKey:        publicKey,
		Privilege:        privilege,
		VisibleFromEpoch: storage.VisibleFrom(history, c.meta.CurrentEpoch),
		JoinedAt:         s.now(),
	}
	c.members[memberID] = m
	out := *m
	return &out, nil
}

func (s *Store) RemoveMember(ctx context.Context, conversationID, actorID, memberID string) error {
	return s.revoke(conversationID, actorID, memberID, models.MemberKindUser)
}

func (s *Store) RevokeLink(ctx context.Context, conversationID, actorID, linkID string) error {
	return s.revoke(conversationID, actorID, linkID, models.MemberKindLink)
}

func (s *Store) revoke(conversationID, actorID, memberID string, kind models.MemberKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, actor := s.member(conversationID, actorID)
	if actor == nil {
		return apperrors.ErrNotFound
	}
	_, target := s.member(conversationID, memberID)
	if target == nil || target.Kind != kind {
		return apperrors.ErrNotFound
	}
	if memberID != actorID {
		if err := storage.CanManage(actor, target); err != nil {
			return err
		}
	} else if target.Privilege == models.PrivilegeOwner {
		return apperrors.ErrOwnerImmutable
	}
	now := s.now()
	target.LeftAt = &now
	delete(c.wraps, string(target.PublicKey))
	return nil
}

func (s *Store) ChangePrivilege(ctx context.Context, conversationID, actorID, memberID string, privilege models.Privilege) error {
	if !privilege.Valid() || privilege == models.PrivilegeOwner {
		return apperrors.ErrInvalidPrivilege
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, actor := s.member(conversationID, actorID)
	if actor == nil {
		return apperrors.ErrNotFound
	}
	_, target := s.member(conversationID, memberID)
	if target == nil {
		return apperrors.ErrNotFound
	}
	if err := storage.CanManage(actor, target); err != nil {
		return err
	}
	target.Privilege = privilege
	return nil
}

func (s *Store) AcceptMembership(ctx context.Context, conversationID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, m := s.member(conversationID, memberID)
	if m == nil {
		return apperrors.ErrNotFound
	}
	if m.AcceptedAt == nil {
		now := s.now()
		m.AcceptedAt = &now
	}
	return nil
}

func (s *Store) GetMemberKeys(ctx context.Context, conversationID, requesterID string) ([]models.MemberKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, m := s.member(conversationID, requesterID)
	if m == nil {
		return nil, apperrors.ErrNotFound
	}
	return activeKeys(c), nil
}

func activeKeys(c *conversation) []models.MemberKey {
	keys := make([]models.MemberKey, 0, len(c.members))
	for _, m := range c.members {
		if !m.Active() {
			continue
		}
		keys = append(keys, models.MemberKey{
			MemberID:         m.MemberID,
			Kind:             m.Kind,
			PublicKey:        m.PublicKey,
			Privilege:        m.Privilege,
			VisibleFromEpoch: m.VisibleFromEpoch,
		})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].MemberID < keys[j].MemberID })
	return keys
}

func (s *Store) GetKeyChain(ctx context.Context, conversationID, requesterID string) (*models.KeyChainResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, m := s.member(conversationID, requesterID)
	if m == nil {
		return nil, apperrors.ErrNotFound
	}
	var wrap *models.MemberWrap
	if w, ok := c.wraps[string(m.PublicKey)]; ok {
		wrap = &w
	}
	return storage.FilterKeyChain(m.VisibleFromEpoch, c.meta.CurrentEpoch, wrap, c.epochs), nil
}

func (s *Store) SubmitRotation(ctx context.Context, conversationID, requesterID string, req models.RotationRequest) (*models.RotationResult, error) {
	if err := storage.ValidateRotation(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, m := s.member(conversationID, requesterID)
	if m == nil {
		return nil, apperrors.ErrNotFound
	}
	if !m.Privilege.AtLeast(models.PrivilegeAdmin) {
		return nil, apperrors.ErrPrivilege
	}
	if req.ExpectedEpoch != c.meta.CurrentEpoch {
		return nil, apperrors.ErrStaleEpoch
	}
	active := activeKeys(c)
	if err := storage.MatchWraps(active, req.MemberWraps); err != nil {
		return nil, err
	}

	next := c.meta.CurrentEpoch + 1
	now := s.now()
	c.epochs = append(c.epochs, models.Epoch{
		ConversationID:   conversationID,
		EpochNumber:      next,
		PublicKey:        req.EpochPublicKey,
		ConfirmationHash: req.ConfirmationHash,
		ChainLink:        req.ChainLink,
		CreatedBy:        requesterID,
		CreatedAt:        now,
	})
	floors := make(map[string]int, len(active))
	for _, k := range active {
		floors[string(k.PublicKey)] = k.VisibleFromEpoch
	}
	for _, w := range req.MemberWraps {
		c.wraps[string(w.MemberPublicKey)] = models.MemberWrap{
			ConversationID:   conversationID,
			EpochNumber:      next,
			MemberPublicKey:  w.MemberPublicKey,
			Wrap:             w.Wrap,
			VisibleFromEpoch: floors[string(w.MemberPublicKey)],
		}
	}
	c.meta.CurrentEpoch = next
	c.meta.TitleCiphertext = req.EncryptedTitle
	c.meta.TitleEpoch = next

	return &models.RotationResult{ConversationID: conversationID, EpochNumber: next}, nil
}

func (s *Store) SaveMessage(ctx context.Context, conversationID, senderID string, req models.SendMessageRequest) (*models.Message, error) {
	if err := storage.ValidateMessage(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, m := s.member(conversationID, senderID)
	if m == nil {
		return nil, apperrors.ErrNotFound
	}
	if !m.Privilege.AtLeast(models.PrivilegeWrite) {
		return nil, apperrors.ErrPrivilege
	}
	if req.EpochNumber > c.meta.CurrentEpoch || req.EpochNumber < m.VisibleFromEpoch {
		return nil, apperrors.ErrInvalidEpoch
	}
	msg := s.appendMessage(c, senderID, req)
	return &msg, nil
}

func (s *Store) appendMessage(c *conversation, senderID string, req models.SendMessageRequest) models.Message {
	msg := models.Message{
		MessageID:      uuid.New().String(),
		ConversationID: c.meta.ConversationID,
		Sequence:       int64(len(c.messages)) + 1,
		EpochNumber:    req.EpochNumber,
		SenderID:       senderID,
		SenderType:     req.SenderType,
		Ciphertext:     req.Ciphertext,
		Cost:           req.Cost,
		CreatedAt:      s.now(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

func (s *Store) GetMessages(ctx context.Context, conversationID, requesterID string, afterSequence int64, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, m := s.member(conversationID, requesterID)
	if m == nil {
		return nil, apperrors.ErrNotFound
	}
	if limit <= 0 {
		limit = storage.DefaultMessageLimit
	}
	out := []models.Message{}
	for _, msg := range c.messages {
		if msg.Sequence <= afterSequence || msg.EpochNumber < m.VisibleFromEpoch {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
