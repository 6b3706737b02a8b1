package core

import (
	"context"
	"log/slog"
	"time"
)

// Chatroom bundles the stores shared by every client.
type Chatroom struct {
	Users    *UserDirectory
	Chat     *ChatStore
	Presence *PresenceTracker
	Reads    *ReadStateTracker
	Notifier *Notifier
	Clock    Clock
	Logger   *slog.Logger

	// PulseInterval is the presence heartbeat interval of clients.
	PulseInterval time.Duration
}

type ChatroomOption func(*Chatroom)

func WithClock(clock Clock) ChatroomOption {
	return func(r *Chatroom) {
		r.Clock = clock
	}
}

func WithPulseInterval(d time.Duration) ChatroomOption {
	return func(r *Chatroom) {
		r.PulseInterval = d
	}
}

func WithDirectoryOptions(opts ...DirectoryOption) ChatroomOption {
	return func(r *Chatroom) {
		r.Users = NewUserDirectory(r.Users.kv, opts...)
	}
}

// NewChatroom builds the stores on kv. Writes are published on notifier.
func NewChatroom(kv KVStore, notifier *Notifier, logger *slog.Logger, opts ...ChatroomOption) *Chatroom {
	observed := NewObservedStore(kv, notifier)
	r := &Chatroom{
		Users:         NewUserDirectory(observed),
		Notifier:      notifier,
		Clock:         SystemClock,
		Logger:        logger,
		PulseInterval: PresencePulse,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Chat = NewChatStore(observed, r.Clock)
	r.Presence = NewPresenceTracker(observed, r.Clock, logger)
	r.Reads = NewReadStateTracker(observed, r.Clock)
	return r
}

// Initialize prepares the shared store for first use.
func (r *Chatroom) Initialize(ctx context.Context) error {
	return r.Chat.Initialize(ctx)
}
