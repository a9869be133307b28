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
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/efchatnet/efepoch/backend/models"
)

var testAddr string

func TestMain(m *testing.M) {
	ctx := context.Background()

	addr, terminate, err := startRedis(ctx)
	if err != nil {
		log.Warn("redis tests skipped", "err", err)
	}
	testAddr = addr

	code := m.Run()

	if terminate != nil {
		terminate()
	}
	os.Exit(code)
}

func startRedis(ctx context.Context) (addr string, terminate func(), err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container runtime unavailable: %v", r)
		}
	}()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, err
	}
	terminate = func() {
		if err := container.Terminate(ctx); err != nil {
			log.Error("failed to terminate container", "err", err)
		}
	}
	addr, err = container.Endpoint(ctx, "")
	if err != nil {
		terminate()
		return "", nil, err
	}
	return addr, terminate, nil
}

func newTestFeed(t *testing.T) *RotationFeed {
	t.Helper()
	if testAddr == "" {
		t.Skip("redis container unavailable")
	}
	rdb := redis.NewClient(&redis.Options{Addr: testAddr})
	t.Cleanup(func() { rdb.Close() })
	return NewRotationFeed(rdb, log.New(io.Discard))
}

func TestRotationFeedRoundTrip(t *testing.T) {
	ctx := context.Background()
	feed := newTestFeed(t)

	events, cancel, err := feed.SubscribeRotations(ctx, "c1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, feed.PublishRotation(ctx, models.RotationEvent{ConversationID: "c1", EpochNumber: 7, RotatedBy: "alice"}))

	select {
	case ev := <-events:
		assert.Equal(t, "epoch_rotated", ev.Type)
		assert.Equal(t, 7, ev.EpochNumber)
		assert.Equal(t, "alice", ev.RotatedBy)
	case <-time.After(5 * time.Second):
		t.Fatal("rotation event not delivered")
	}
}

func TestRotationFeedCancelClosesChannel(t *testing.T) {
	feed := newTestFeed(t)
	events, cancel, err := feed.SubscribeRotations(context.Background(), "c1")
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestRotationFeedSkipsMalformedPayloads(t *testing.T) {
	ctx := context.Background()
	feed := newTestFeed(t)

	events, cancel, err := feed.SubscribeRotations(ctx, "c1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, feed.rdb.Publish(ctx, rotationChannelPrefix+"c1", "not json").Err())
	require.NoError(t, feed.PublishRotation(ctx, models.RotationEvent{ConversationID: "c1", EpochNumber: 3}))

	select {
	case ev := <-events:
		assert.Equal(t, 3, ev.EpochNumber)
	case <-time.After(5 * time.Second):
		t.Fatal("rotation event not delivered")
	}
}
