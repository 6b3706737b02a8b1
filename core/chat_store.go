package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChatStore persists the ChatState as one JSON document under ChatStateKey.
//
// Every mutation reads the whole document, changes it in memory and writes
// it back. Mutations made through one ChatStore are serialized; writers in
// other processes are not, and the last full snapshot written wins. An
// append racing with another process's append to the same thread can be
// lost.
type ChatStore struct {
	kv    KVStore
	clock Clock
	mu    sync.Mutex
}

func NewChatStore(kv KVStore, clock Clock) *ChatStore {
	if clock == nil {
		clock = SystemClock
	}
	return &ChatStore{kv: kv, clock: clock}
}

// Load returns the stored state. Absent or malformed data yields the
// default state; only store errors are returned.
func (s *ChatStore) Load(ctx context.Context) (*ChatState, error) {
	raw, ok, err := s.kv.Get(ctx, ChatStateKey)
	if err != nil {
		return nil, fmt.Errorf("Get(%s): %w", ChatStateKey, err)
	}
	if !ok {
		return DefaultChatState(), nil
	}
	return decodeChatState(raw), nil
}

// Save normalizes and writes the state.
func (s *ChatStore) Save(ctx context.Context, state *ChatState) error {
	if state == nil {
		state = DefaultChatState()
	}
	state.normalize()
	return saveJSON(ctx, s.kv, ChatStateKey, state)
}

// Initialize writes the default state if nothing is stored yet.
func (s *ChatStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok, err := s.kv.Get(ctx, ChatStateKey)
	if err != nil {
		return fmt.Errorf("Get(%s): %w", ChatStateKey, err)
	}
	if ok {
		return nil
	}
	return s.Save(ctx, DefaultChatState())
}

// Messages returns the messages of thread t as seen by currentUser.
func (s *ChatStore) Messages(ctx context.Context, currentUser string, t Thread) ([]Message, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return state.Messages(currentUser, t), nil
}

// NewMessage builds a message sent at now. The time label uses now's location.
func NewMessage(from, text string, now time.Time) Message {
	ts := now.UnixMilli()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return Message{
		ID:   fmt.Sprintf("%d-%s", ts, suffix),
		From: from,
		Text: text,
		TS:   ts,
		Time: TimeLabel(now),
	}
}

// Send appends a message from sender to thread t and saves the state.
func (s *ChatStore) Send(ctx context.Context, sender string, t Thread, text string) (*Message, error) {
	if sender == "" {
		return nil, ErrNoUser
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	switch t.Kind {
	case ChannelThread:
		if !IsChannel(t.Name) {
			return nil, ErrUnknownChannel
		}
	case DirectThread:
		if t.Name == "" || t.Name == sender {
			return nil, ErrInvalidCounterpart
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	msg := NewMessage(sender, text, s.clock.Now())
	state.Append(sender, t, msg)
	if err := s.Save(ctx, state); err != nil {
		return nil, err
	}
	return &msg, nil
}
