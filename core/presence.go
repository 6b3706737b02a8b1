package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// PresenceTTL is how long a heartbeat keeps a user online.
	PresenceTTL = 30 * time.Second
	// PresencePulse is the heartbeat interval of an active session.
	PresencePulse = 10 * time.Second
)

// Presence maps a handle to its last heartbeat in epoch milliseconds.
type Presence map[string]int64

// IsOnline reports whether user's last heartbeat is at most PresenceTTL old.
// Going offline is never recorded; it is derived at read time.
func (p Presence) IsOnline(user string, now time.Time) bool {
	last, ok := p[user]
	return ok && now.UnixMilli()-last <= PresenceTTL.Milliseconds()
}

// Prune drops every entry older than PresenceTTL.
func (p Presence) Prune(now time.Time) {
	for user, last := range p {
		if now.UnixMilli()-last > PresenceTTL.Milliseconds() {
			delete(p, user)
		}
	}
}

// Partition splits users into online and offline, both sorted.
func Partition(users []string, p Presence, now time.Time) (online, offline []string) {
	sorted := append([]string(nil), users...)
	sort.Strings(sorted)

	online = make([]string, 0)
	offline = make([]string, 0)
	for _, u := range sorted {
		if p.IsOnline(u, now) {
			online = append(online, u)
		} else {
			offline = append(offline, u)
		}
	}
	return online, offline
}

// PresenceTracker keeps the presence map stored under PresenceKey.
type PresenceTracker struct {
	kv     KVStore
	clock  Clock
	logger *slog.Logger
	mu     sync.Mutex
}

func NewPresenceTracker(kv KVStore, clock Clock, logger *slog.Logger) *PresenceTracker {
	if clock == nil {
		clock = SystemClock
	}
	return &PresenceTracker{kv: kv, clock: clock, logger: logger}
}

func (t *PresenceTracker) Load(ctx context.Context) (Presence, error) {
	return loadTimestamps(ctx, t.kv, PresenceKey)
}

// Heartbeat marks user online now and prunes every stale entry.
func (t *PresenceTracker) Heartbeat(ctx context.Context, user string) error {
	if user == "" {
		return ErrNoUser
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.Load(ctx)
	if err != nil {
		return err
	}
	now := t.clock.Now()
	p[user] = now.UnixMilli()
	Presence(p).Prune(now)
	return saveJSON(ctx, t.kv, PresenceKey, p)
}

// Remove takes user offline immediately.
func (t *PresenceTracker) Remove(ctx context.Context, user string) error {
	if user == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.Load(ctx)
	if err != nil {
		return err
	}
	delete(p, user)
	return saveJSON(ctx, t.kv, PresenceKey, p)
}

// Pulse sends a heartbeat for user now and then every interval until ctx is
// done, at which point the user's entry is removed. The returned channel is
// closed once the entry is gone.
func (t *PresenceTracker) Pulse(ctx context.Context, user string, interval time.Duration) (<-chan struct{}, error) {
	if err := t.Heartbeat(ctx, user); err != nil {
		return nil, fmt.Errorf("Heartbeat: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				if err := t.Remove(context.WithoutCancel(ctx), user); err != nil {
					t.logger.Error(fmt.Sprintf("remove presence: %v", err), slog.String("user", user))
				}
				return
			case <-ticker.C:
				if err := t.Heartbeat(ctx, user); err != nil {
					t.logger.Error(fmt.Sprintf("heartbeat: %v", err), slog.String("user", user))
				}
			}
		}
	}()
	return done, nil
}
