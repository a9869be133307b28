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
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/efchatnet/efepoch/backend/crypto"
	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
)

// CacheEvent tells subscribers which epochs of a conversation changed.
// Cleared is set when keys were dropped rather than added.
type CacheEvent struct {
	ConversationID string
	Epochs         []int
	CurrentEpoch   int
	Cleared        bool
}

type processed struct {
	fingerprint [sha256.Size]byte
	resolution  *Resolution
}

// KeyCache memoizes resolved epoch private keys per conversation and tracks
// the epoch new content is encrypted under. It is safe for concurrent use.
type KeyCache struct {
	mu        sync.RWMutex
	keys      map[string]map[int][]byte
	current   map[string]int
	processed map[string]processed
	version   uint64

	subMu   sync.Mutex
	subs    map[int]chan CacheEvent
	nextSub int

	resolve func(*models.KeyChainResponse, []byte) *Resolution
}

func NewKeyCache() *KeyCache {
	return &KeyCache{
		keys:      make(map[string]map[int][]byte),
		current:   make(map[string]int),
		processed: make(map[string]processed),
		subs:      make(map[int]chan CacheEvent),
		resolve:   ResolveKeyChain,
	}
}

func (c *KeyCache) Get(conversationID string, epoch int) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[conversationID][epoch]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), key...), true
}

func (c *KeyCache) Set(conversationID string, epoch int, key []byte) {
	c.mu.Lock()
	changed := c.setLocked(conversationID, epoch, key)
	cur := c.current[conversationID]
	c.mu.Unlock()

	if changed {
		c.notify(CacheEvent{ConversationID: conversationID, Epochs: []int{epoch}, CurrentEpoch: cur})
	}
}

func (c *KeyCache) setLocked(conversationID string, epoch int, key []byte) bool {
	byEpoch := c.keys[conversationID]
	if byEpoch == nil {
		byEpoch = make(map[int][]byte)
		c.keys[conversationID] = byEpoch
	}
	if old, ok := byEpoch[epoch]; ok && bytes.Equal(old, key) {
		return false
	}
	byEpoch[epoch] = append([]byte(nil), key...)
	c.version++
	return true
}

func (c *KeyCache) SetCurrentEpoch(conversationID string, epoch int) {
	c.mu.Lock()
	changed := c.current[conversationID] != epoch
	c.current[conversationID] = epoch
	if changed {
		c.version++
	}
	c.mu.Unlock()

	if changed {
		c.notify(CacheEvent{ConversationID: conversationID, CurrentEpoch: epoch})
	}
}

func (c *KeyCache) CurrentEpoch(conversationID string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.current[conversationID]
	return n, ok
}

// CurrentKey returns the current epoch and its key, if both are known.
func (c *KeyCache) CurrentKey(conversationID string) (int, []byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.current[conversationID]
	if !ok {
		return 0, nil, false
	}
	key, ok := c.keys[conversationID][n]
	if !ok {
		return n, nil, false
	}
	return n, append([]byte(nil), key...), true
}

// Version increases whenever a key or current-epoch pointer changes, for
// callers that poll instead of subscribing.
func (c *KeyCache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Process resolves a key-chain response into the cache. Calling it again with
// the same response and private key returns the earlier resolution without
// repeating any unwrap or derivation. The current-epoch pointer only moves
// forward here; rotations move it explicitly.
func (c *KeyCache) Process(conversationID string, resp *models.KeyChainResponse, privateKey []byte) (*Resolution, error) {
	if conversationID == "" || resp == nil {
		return nil, apperrors.InvalidArg("conversation and key chain are required")
	}
	if crypto.IsPlaceholder(privateKey) {
		return nil, apperrors.ErrPlaceholderKey
	}

	fp := fingerprint(conversationID, resp, privateKey)
	c.mu.RLock()
	prev, hit := c.processed[conversationID]
	c.mu.RUnlock()
	if hit && prev.fingerprint == fp {
		return prev.resolution, nil
	}

	res := c.resolve(resp, privateKey)

	c.mu.Lock()
	var epochs []int
	for n, key := range res.Keys {
		if c.setLocked(conversationID, n, key) {
			epochs = append(epochs, n)
		}
	}
	if resp.CurrentEpoch > c.current[conversationID] {
		c.current[conversationID] = resp.CurrentEpoch
		c.version++
	}
	cur := c.current[conversationID]
	c.processed[conversationID] = processed{fingerprint: fp, resolution: res}
	c.mu.Unlock()

	if len(epochs) > 0 {
		sort.Ints(epochs)
		c.notify(CacheEvent{ConversationID: conversationID, Epochs: epochs, CurrentEpoch: cur})
	}
	return res, nil
}

func (c *KeyCache) ClearConversation(conversationID string) {
	c.mu.Lock()
	delete(c.keys, conversationID)
	delete(c.current, conversationID)
	delete(c.processed, conversationID)
	c.version++
	c.mu.Unlock()

	c.notify(CacheEvent{ConversationID: conversationID, Cleared: true})
}

// Clear drops every key, e.g. on logout.
func (c *KeyCache) Clear() {
	c.mu.Lock()
	c.keys = make(map[string]map[int][]byte)
	c.current = make(map[string]int)
	c.processed = make(map[string]processed)
	c.version++
	c.mu.Unlock()

	c.notify(CacheEvent{Cleared: true})
}

// Subscribe delivers cache changes until the returned func is called.
// Delivery never blocks the cache; a full subscriber misses events and
// should fall back to Get.
func (c *KeyCache) Subscribe() (<-chan CacheEvent, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan CacheEvent, 16)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

func (c *KeyCache) notify(event CacheEvent) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func fingerprint(conversationID string, resp *models.KeyChainResponse, privateKey []byte) [sha256.Size]byte {
	h := sha256.New()
	writeField := func(b []byte) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	writeInt := func(v int) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(v))
		h.Write(n[:])
	}

	writeField([]byte(conversationID))
	writeField(privateKey)
	writeInt(resp.CurrentEpoch)
	writeInt(len(resp.Wraps))
	for _, w := range resp.Wraps {
		writeInt(w.EpochNumber)
		writeInt(w.VisibleFromEpoch)
		writeField(w.Wrap)
		writeField(w.ConfirmationHash)
	}
	writeInt(len(resp.ChainLinks))
	for _, l := range resp.ChainLinks {
		writeInt(l.EpochNumber)
		writeField(l.ChainLink)
		writeField(l.ConfirmationHash)
	}

	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}
