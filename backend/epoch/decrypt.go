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
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/efchatnet/efepoch/backend/crypto"
	"github.com/efchatnet/efepoch/backend/models"
)

const (
	PlaceholderFailed     = "[decryption failed]"
	PlaceholderMissingKey = "[decryption failed: missing epoch key]"
)

// DefaultDecryptWorkers bounds concurrent decryptions per Decrypt call.
const DefaultDecryptWorkers = 8

// KeyLookup is the read side of a KeyCache.
type KeyLookup interface {
	Get(conversationID string, epoch int) ([]byte, bool)
}

// DecryptOne never fails: a message that cannot be read comes back with
// placeholder content and Failed set.
func DecryptOne(keys KeyLookup, conversationID string, msg models.Message) models.DecryptedMessage {
	out := models.DecryptedMessage{
		MessageID:   msg.MessageID,
		Sequence:    msg.Sequence,
		EpochNumber: msg.EpochNumber,
		SenderID:    msg.SenderID,
		Role:        models.RoleOf(msg.SenderType),
		Cost:        msg.Cost,
		CreatedAt:   msg.CreatedAt,
	}

	key, ok := keys.Get(conversationID, msg.EpochNumber)
	if !ok {
		out.Content = PlaceholderMissingKey
		out.Failed = true
		return out
	}
	text, err := crypto.DecryptMessage(key, msg.Ciphertext)
	if err != nil {
		out.Content = PlaceholderFailed
		out.Failed = true
		return out
	}
	out.Content = text
	return out
}

type decrypted struct {
	fingerprint [sha256.Size]byte
	messages    []models.DecryptedMessage
}

// Pipeline decrypts message lists in parallel and remembers the last result
// per conversation, so an unchanged list and unchanged keys yield the very
// same slice.
type Pipeline struct {
	keys    KeyLookup
	workers int

	mu   sync.Mutex
	last map[string]decrypted
}

func NewPipeline(keys KeyLookup, workers int) *Pipeline {
	if workers <= 0 {
		workers = DefaultDecryptWorkers
	}
	return &Pipeline{
		keys:    keys,
		workers: workers,
		last:    make(map[string]decrypted),
	}
}

// Decrypt returns one entry per input message, in input order. An unchanged
// input returns the slice from the previous call, shared by every caller, so
// the result must be treated as read-only.
func (p *Pipeline) Decrypt(conversationID string, msgs []models.Message) []models.DecryptedMessage {
	fp := p.fingerprint(conversationID, msgs)

	p.mu.Lock()
	prev, ok := p.last[conversationID]
	p.mu.Unlock()
	if ok && prev.fingerprint == fp {
		return prev.messages
	}

	out := make([]models.DecryptedMessage, len(msgs))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range msgs {
		i := i
		g.Go(func() error {
			out[i] = DecryptOne(p.keys, conversationID, msgs[i])
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	p.last[conversationID] = decrypted{fingerprint: fp, messages: out}
	p.mu.Unlock()
	return out
}

// Forget drops the remembered result for a conversation.
func (p *Pipeline) Forget(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.last, conversationID)
}

// fingerprint covers the messages and the key material for every epoch they
// reference, so a newly resolved key invalidates the remembered result.
func (p *Pipeline) fingerprint(conversationID string, msgs []models.Message) [sha256.Size]byte {
	h := sha256.New()
	var n [8]byte
	writeInt := func(v int64) {
		binary.BigEndian.PutUint64(n[:], uint64(v))
		h.Write(n[:])
	}
	writeField := func(b []byte) {
		writeInt(int64(len(b)))
		h.Write(b)
	}

	writeField([]byte(conversationID))
	writeInt(int64(len(msgs)))
	epochs := make(map[int]struct{})
	for _, m := range msgs {
		writeField([]byte(m.MessageID))
		writeInt(m.Sequence)
		writeInt(int64(m.EpochNumber))
		writeField([]byte(m.SenderID))
		writeField([]byte(m.SenderType))
		writeField(m.Ciphertext)
		if m.Cost != nil {
			writeInt(1)
			writeInt(int64(math.Float64bits(*m.Cost)))
		} else {
			writeInt(0)
		}
		writeInt(m.CreatedAt.UnixNano())
		epochs[m.EpochNumber] = struct{}{}
	}

	ordered := make([]int, 0, len(epochs))
	for e := range epochs {
		ordered = append(ordered, e)
	}
	sort.Ints(ordered)
	for _, e := range ordered {
		writeInt(int64(e))
		if key, ok := p.keys.Get(conversationID, e); ok {
			writeInt(1)
			writeField(key)
		} else {
			writeInt(0)
		}
	}

	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}
