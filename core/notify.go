package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Change reports that a key of the shared store was rewritten.
type Change struct {
	Key string `json:"key"`
	// Origin identifies the writer. Subscribers never see their own writes.
	Origin string `json:"origin,omitempty"`
}

func (c Change) String() string {
	return fmt.Sprintf("Change{Key: %s, Origin: %s}", c.Key, c.Origin)
}

type originKey struct{}

// WithOrigin tags writes made with ctx as coming from origin.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

func OriginFromContext(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

type subscriber struct {
	origin string
	fn     func(Change)
}

// Notifier fans store changes out to subscribers. Delivery is asynchronous
// and advisory: a subscriber re-reads whatever state it cares about.
type Notifier struct {
	subs   map[int]subscriber
	next   int
	mu     sync.RWMutex
	events chan Change
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger, bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Notifier{
		subs:   make(map[int]subscriber),
		events: make(chan Change, bufferSize),
		logger: logger,
	}
}

// Subscribe registers fn for changes made by anyone but origin.
// The returned function removes the subscription.
func (n *Notifier) Subscribe(origin string, fn func(Change)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = subscriber{origin: origin, fn: fn}
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Publish queues c for delivery. It never blocks; a change is dropped when
// the queue is full.
func (n *Notifier) Publish(c Change) {
	select {
	case n.events <- c:
	default:
		n.logger.Warn("change dropped", slog.String("key", c.Key))
	}
}

// Listen delivers queued changes until ctx is done.
func (n *Notifier) Listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-n.events:
			n.dispatch(c)
		}
	}
}

func (n *Notifier) dispatch(c Change) {
	n.mu.RLock()
	targets := make([]func(Change), 0, len(n.subs))
	for _, s := range n.subs {
		if s.origin != "" && s.origin == c.Origin {
			continue
		}
		targets = append(targets, s.fn)
	}
	n.mu.RUnlock()

	n.logger.Debug(c.String(), slog.Int("subscribers", len(targets)))
	for _, fn := range targets {
		fn(c)
	}
}

// ObservedStore publishes a Change after every successful write to the
// wrapped store. The writer is taken from the context, see WithOrigin.
type ObservedStore struct {
	KVStore
	notifier *Notifier
}

func NewObservedStore(kv KVStore, notifier *Notifier) *ObservedStore {
	return &ObservedStore{KVStore: kv, notifier: notifier}
}

func (s *ObservedStore) Set(ctx context.Context, key, value string) error {
	if err := s.KVStore.Set(ctx, key, value); err != nil {
		return err
	}
	s.notifier.Publish(Change{Key: key, Origin: OriginFromContext(ctx)})
	return nil
}

func (s *ObservedStore) Delete(ctx context.Context, key string) error {
	if err := s.KVStore.Delete(ctx, key); err != nil {
		return err
	}
	s.notifier.Publish(Change{Key: key, Origin: OriginFromContext(ctx)})
	return nil
}
