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

package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

// epoch:notify:{conversationId} - pub/sub channel
const rotationChannelPrefix = "epoch:notify:"

// RotationFeed announces committed rotations over redis pub/sub so every
// server instance can push them to its websocket subscribers.
type RotationFeed struct {
	rdb    *redis.Client
	logger *log.Logger
}

var _ storage.RotationFeed = (*RotationFeed)(nil)

func NewRotationFeed(rdb *redis.Client, logger *log.Logger) *RotationFeed {
	return &RotationFeed{
		rdb:    rdb,
		logger: logger.With("component", "redis"),
	}
}

// PublishRotation notifies subscribers on every instance.
func (f *RotationFeed) PublishRotation(ctx context.Context, event models.RotationEvent) error {
	if event.Type == "" {
		event.Type = "epoch_rotated"
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rotation event: %w", err)
	}

	if err := f.rdb.Publish(ctx, rotationChannelPrefix+event.ConversationID, data).Err(); err != nil {
		return fmt.Errorf("failed to publish rotation: %w", err)
	}
	return nil
}

// SubscribeRotations streams rotation events for one conversation until the
// returned cancel func is called or ctx ends.
func (f *RotationFeed) SubscribeRotations(ctx context.Context, conversationID string) (<-chan models.RotationEvent, func(), error) {
	sub := f.rdb.Subscribe(ctx, rotationChannelPrefix+conversationID)
	// Wait for the subscription to be confirmed so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to rotations: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan models.RotationEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event models.RotationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					f.logger.Warn("skipping malformed rotation event", "channel", msg.Channel, "err", err)
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()
	return out, cancel, nil
}
