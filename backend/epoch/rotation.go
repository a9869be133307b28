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

package epoch

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/efchatnet/efepoch/backend/crypto"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
)

//go:generate mockgen -destination=mocks/mock_remote.go -package=mocks github.com/efchatnet/efepoch/backend/epoch Remote

// Remote is the server side of the key chain as seen by one member.
type Remote interface {
	FetchKeyChain(ctx context.Context, conversationID string) (*models.KeyChainResponse, error)
	FetchMemberKeys(ctx context.Context, conversationID string) ([]models.MemberKey, error)
	SubmitRotation(ctx context.Context, conversationID string, req models.RotationRequest) (*models.RotationResult, error)
}

// DefaultRotationAttempts is one try plus one retry after a stale epoch.
const DefaultRotationAttempts = 2

// Rotation is a prepared but unsubmitted epoch advance. PrivateKey must stay
// on this device.
type Rotation struct {
	EpochNumber int
	PrivateKey  []byte
	Request     models.RotationRequest
}

// BuildRotation prepares the advance from currentEpoch to currentEpoch+1:
// a fresh keypair wrapped to every member key, a chain link back to the
// current key, and the title re-encrypted under the new epoch.
func BuildRotation(currentKey []byte, currentEpoch int, members []models.MemberKey, title string) (*Rotation, error) {
	if crypto.IsPlaceholder(currentKey) {
		return nil, apperrors.ErrPlaceholderKey
	}
	if currentEpoch < 1 {
		return nil, apperrors.ErrInvalidEpoch
	}
	if len(members) == 0 {
		return nil, apperrors.ErrNoMembers
	}

	next := currentEpoch + 1
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, apperrors.CryptoFailure("generate epoch key", err)
	}

	link, err := crypto.NewChainLink(kp.PrivateKey, next, currentKey)
	if err != nil {
		return nil, apperrors.CryptoFailure("create chain link", err)
	}

	wraps := make([]models.MemberWrapRequest, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[string(m.PublicKey)]; dup {
			continue
		}
		seen[string(m.PublicKey)] = struct{}{}
		w, err := crypto.WrapKey(m.PublicKey, kp.PrivateKey)
		if err != nil {
			return nil, apperrors.CryptoFailure(fmt.Sprintf("wrap for member %s", m.MemberID), err)
		}
		wraps = append(wraps, models.MemberWrapRequest{MemberPublicKey: m.PublicKey, Wrap: w})
	}

	req := models.RotationRequest{
		ExpectedEpoch:    currentEpoch,
		EpochPublicKey:   kp.PublicKey,
		ConfirmationHash: crypto.ConfirmationHash(next, kp.PublicKey, kp.PrivateKey),
		ChainLink:        link,
		MemberWraps:      wraps,
	}
	req.EncryptedTitle, err = crypto.EncryptTitle(kp.PublicKey, title)
	if err != nil {
		return nil, apperrors.CryptoFailure("encrypt title", err)
	}

	return &Rotation{EpochNumber: next, PrivateKey: kp.PrivateKey, Request: req}, nil
}

type Option func(*Coordinator)

func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.attempts = n
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Coordinator runs rotations for one member identity against a Remote,
// retrying when another member advanced the epoch first.
type Coordinator struct {
	remote   Remote
	cache    *KeyCache
	identity []byte
	attempts int
	logger   *log.Logger
}

func NewCoordinator(remote Remote, cache *KeyCache, identityKey []byte, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote:   remote,
		cache:    cache,
		identity: identityKey,
		attempts: DefaultRotationAttempts,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "rotation")
	return c
}

// Refresh fetches and resolves the member's key chain into the cache.
func (c *Coordinator) Refresh(ctx context.Context, conversationID string) (*Resolution, error) {
	resp, err := c.remote.FetchKeyChain(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.cache.Process(conversationID, resp, c.identity)
}

// Rotate advances the conversation one epoch. The cache only learns the new
// key after the server has accepted it.
func (c *Coordinator) Rotate(ctx context.Context, conversationID, title string) (*models.RotationResult, error) {
	epoch, key, ok := c.cache.CurrentKey(conversationID)
	if !ok || crypto.IsPlaceholder(key) {
		return nil, apperrors.ErrPlaceholderKey
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			if _, err := c.Refresh(ctx, conversationID); err != nil {
				return nil, err
			}
			epoch, key, ok = c.cache.CurrentKey(conversationID)
			if !ok {
				return nil, apperrors.ErrPlaceholderKey
			}
		}

		members, err := c.remote.FetchMemberKeys(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		rot, err := BuildRotation(key, epoch, members, title)
		if err != nil {
			return nil, err
		}

		result, err := c.remote.SubmitRotation(ctx, conversationID, rot.Request)
		if err == nil {
			c.cache.Set(conversationID, rot.EpochNumber, rot.PrivateKey)
			c.cache.SetCurrentEpoch(conversationID, rot.EpochNumber)
			c.logger.Debug("epoch rotated", "conversation", conversationID, "epoch", rot.EpochNumber, "attempt", attempt)
			return result, nil
		}
		// A rotation that lost to another rotation, or to a membership change
		// after the member keys were fetched, is rebuilt from fresh state.
		if !apperrors.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("rotation lost race", "conversation", conversationID, "expected", epoch, "attempt", attempt, "code", apperrors.CodeOf(err))
	}
	return nil, fmt.Errorf("rotation failed after %d attempts: %w", c.attempts, lastErr)
}
