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

package memory

import (
	"context"
	"sync"

	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

// Feed is an in-process RotationFeed. Slow subscribers miss events rather
// than block the publisher; they recover on their next key-chain fetch.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan models.RotationEvent
}

var _ storage.RotationFeed = (*Feed)(nil)

func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[int]chan models.RotationEvent)}
}

func (f *Feed) PublishRotation(ctx context.Context, event models.RotationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs[event.ConversationID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (f *Feed) SubscribeRotations(ctx context.Context, conversationID string) (<-chan models.RotationEvent, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan models.RotationEvent, 16)
	if f.subs[conversationID] == nil {
		f.subs[conversationID] = make(map[int]chan models.RotationEvent)
	}
	f.subs[conversationID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[conversationID], id)
			if len(f.subs[conversationID]) == 0 {
				delete(f.subs, conversationID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}
