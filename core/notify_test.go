package core

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier(t *testing.T) {
	t.Run("skips the writer", func(t *testing.T) {
		f := NewRoomFixture(t)
		defer f.tearDown()

		first := make(chan Change, 10)
		second := make(chan Change, 10)
		defer f.notifier.Subscribe("first", func(c Change) { first <- c })()
		defer f.notifier.Subscribe("second", func(c Change) { second <- c })()

		kv := NewObservedStore(NewMemoryStore(), f.notifier)
		require.NoError(t, kv.Set(WithOrigin(f.ctx, "first"), ChatStateKey, "{}"))
		require.NoError(t, kv.Delete(WithOrigin(f.ctx, "second"), PresenceKey))

		waitFor(t, second, func(c Change) bool { return c.Key == ChatStateKey && c.Origin == "first" })
		waitFor(t, first, func(c Change) bool { return c.Key == PresenceKey && c.Origin == "second" })

		f.notifier.Publish(Change{Key: UsersKey, Origin: "marker"})
		for _, c := range drainUntil(t, first, "marker") {
			assert.NotEqual(t, "first", c.Origin)
		}
		for _, c := range drainUntil(t, second, "marker") {
			assert.NotEqual(t, "second", c.Origin)
		}
	})

	t.Run("unsubscribe", func(t *testing.T) {
		f := NewRoomFixture(t)
		defer f.tearDown()

		var mu sync.Mutex
		calls := 0
		unsubscribe := f.notifier.Subscribe("", func(Change) {
			mu.Lock()
			calls++
			mu.Unlock()
		})
		unsubscribe()

		seen := make(chan Change, 10)
		defer f.notifier.Subscribe("", func(c Change) { seen <- c })()

		f.notifier.Publish(Change{Key: UsersKey, Origin: "marker"})
		drainUntil(t, seen, "marker")

		mu.Lock()
		defer mu.Unlock()
		assert.Zero(t, calls)
	})

	t.Run("failed writes are not published", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		notifier := NewNotifier(testLogger, 1)
		db, err := NewSQLiteDB("closed", &SQLiteDBOption{Mode: "memory"})
		require.NoError(t, err)
		db.Close()

		kv := NewObservedStore(NewSQLiteStore(db.DB), notifier)
		assert.Error(t, kv.Set(f.ctx, ChatStateKey, "{}"))
		assert.Len(t, notifier.events, 0)
	})

	t.Run("full queue drops", func(t *testing.T) {
		notifier := NewNotifier(testLogger, 1)
		notifier.Publish(Change{Key: UsersKey})
		notifier.Publish(Change{Key: ChatStateKey})

		require.Len(t, notifier.events, 1)
		assert.Equal(t, UsersKey, (<-notifier.events).Key)
	})
}

func TestNATSBridge(t *testing.T) {
	url := os.Getenv("N14_TEST_NATS_URL")
	if url == "" {
		t.Skip("N14_TEST_NATS_URL not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connect := func() (*Notifier, *NATSBridge) {
		nc, err := nats.Connect(url)
		require.NoError(t, err)
		t.Cleanup(nc.Close)

		notifier := NewNotifier(testLogger, 0)
		go notifier.Listen(ctx)

		bridge := NewNATSBridge(nc, "n14.test."+t.Name(), notifier, testLogger)
		require.NoError(t, bridge.Start())
		t.Cleanup(func() { bridge.Close() })
		require.NoError(t, nc.Flush())
		return notifier, bridge
	}

	local, _ := connect()
	remote, _ := connect()

	seen := make(chan Change, 10)
	defer remote.Subscribe("remote-client", func(c Change) { seen <- c })()

	kv := NewObservedStore(NewMemoryStore(), local)
	require.NoError(t, kv.Set(WithOrigin(ctx, "local-client"), ChatStateKey, "{}"))

	select {
	case c := <-seen:
		assert.Equal(t, ChatStateKey, c.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("change not relayed")
	}
}
