package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// manualClock only moves when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(ms int64) *manualClock {
	return &manualClock{now: time.UnixMilli(ms).UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(ms).In(c.now.Location())
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type BaseFixture struct {
	ctx      context.Context
	kv       *MemoryStore
	clock    *manualClock
	t        *testing.T
	tearDown func()
}

func NewBaseFixture(t *testing.T) *BaseFixture {
	ctx, cancel := context.WithCancel(context.Background())

	return &BaseFixture{
		ctx:   ctx,
		kv:    NewMemoryStore(),
		clock: newManualClock(0),
		t:     t,
		tearDown: func() {
			cancel()
		},
	}
}

type SQLiteFixture struct {
	*BaseFixture
	db    *SQLiteDB
	store *SQLiteStore
}

func NewSQLiteFixture(t *testing.T) *SQLiteFixture {
	base := NewBaseFixture(t)

	db, err := NewSQLiteDB(uuid.NewString(), &SQLiteDBOption{Mode: "memory", Cache: "shared"})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	store := NewSQLiteStore(db.DB)
	store.clock = base.clock

	tearDown := base.tearDown
	base.tearDown = func() {
		tearDown()
		db.Close()
	}

	return &SQLiteFixture{
		BaseFixture: base,
		db:          db,
		store:       store,
	}
}

type RoomFixture struct {
	*BaseFixture
	notifier *Notifier
	room     *Chatroom
}

// NewRoomFixture builds a chatroom on a memory store. Pulses only beat once
// unless the test advances them itself.
func NewRoomFixture(t *testing.T) *RoomFixture {
	base := NewBaseFixture(t)

	notifier := NewNotifier(testLogger, 0)
	listenCtx, cancel := context.WithCancel(base.ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.Listen(listenCtx)
	}()

	room := NewChatroom(base.kv, notifier, testLogger,
		WithClock(base.clock),
		WithPulseInterval(time.Hour),
		WithDirectoryOptions(WithBcryptCost(bcrypt.MinCost)),
	)
	if err := room.Initialize(base.ctx); err != nil {
		t.Fatal(err)
	}

	tearDown := base.tearDown
	base.tearDown = func() {
		cancel()
		wg.Wait()
		tearDown()
	}

	return &RoomFixture{
		BaseFixture: base,
		notifier:    notifier,
		room:        room,
	}
}
