package core

import (
	"context"
	"sync"
)

// ReadState maps a thread key to the time, in epoch milliseconds, its owner
// last viewed the thread.
type ReadState map[string]int64

// UnreadCount counts the messages of the thread not sent by user and sent
// after user last read it. A thread never read counts every foreign message.
func UnreadCount(rs ReadState, user, threadKey string, msgs []Message) int {
	readTS := rs[threadKey]
	n := 0
	for _, m := range msgs {
		if m.From != user && m.TS > readTS {
			n++
		}
	}
	return n
}

// ReadStateTracker stores one ReadState per user under ReadStatePrefix+user.
type ReadStateTracker struct {
	kv    KVStore
	clock Clock
	mu    sync.Mutex
}

func NewReadStateTracker(kv KVStore, clock Clock) *ReadStateTracker {
	if clock == nil {
		clock = SystemClock
	}
	return &ReadStateTracker{kv: kv, clock: clock}
}

func (t *ReadStateTracker) Load(ctx context.Context, user string) (ReadState, error) {
	if user == "" {
		return ReadState{}, nil
	}
	return loadTimestamps(ctx, t.kv, ReadStatePrefix+user)
}

// MarkRead records that user has read threadKey up to now.
func (t *ReadStateTracker) MarkRead(ctx context.Context, user, threadKey string) error {
	if user == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rs, err := t.Load(ctx, user)
	if err != nil {
		return err
	}
	rs[threadKey] = t.clock.Now().UnixMilli()
	return saveJSON(ctx, t.kv, ReadStatePrefix+user, rs)
}

func (t *ReadStateTracker) UnreadCount(ctx context.Context, user, threadKey string, msgs []Message) (int, error) {
	rs, err := t.Load(ctx, user)
	if err != nil {
		return 0, err
	}
	return UnreadCount(rs, user, threadKey, msgs), nil
}
