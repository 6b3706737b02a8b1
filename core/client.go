package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// watchedKeys are the keys whose rewrite makes a client re-read its view.
var watchedKeys = map[string]bool{
	ChatStateKey: true,
	PresenceKey:  true,
	UsersKey:     true,
}

// Client is one open chat window: it owns a session scoped store holding the
// signed in handle, the thread on screen and the presence pulse.
type Client struct {
	id      string
	room    *Chatroom
	session KVStore
	logger  *slog.Logger

	mu        sync.Mutex
	user      string
	view      Thread
	stopPulse context.CancelFunc
	pulseDone <-chan struct{}
}

// NewClient opens a client on session. A nil session gets a fresh
// MemoryStore.
func (r *Chatroom) NewClient(session KVStore) *Client {
	if session == nil {
		session = NewMemoryStore()
	}
	id := uuid.NewString()
	return &Client{
		id:      id,
		room:    r,
		session: session,
		logger:  r.Logger.With(slog.String("client", id)),
		view:    ChannelOf(GeneralChannel),
	}
}

func (c *Client) ID() string {
	return c.id
}

// User returns the signed in handle, or "" when signed out.
func (c *Client) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Client) View() Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// withOrigin tags ctx so the client is not notified of its own writes.
func (c *Client) withOrigin(ctx context.Context) context.Context {
	return WithOrigin(ctx, c.id)
}

// Register creates the account and signs it in.
func (c *Client) Register(ctx context.Context, input RegisterInput) error {
	ctx = c.withOrigin(ctx)
	handle, err := c.room.Users.Register(ctx, input)
	if err != nil {
		return err
	}
	c.logger.Info("registered", slog.String("user", handle))
	return c.Enter(ctx, handle)
}

func (c *Client) SignIn(ctx context.Context, username, password string) error {
	ctx = c.withOrigin(ctx)
	handle, err := c.room.Users.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}
	return c.Enter(ctx, handle)
}

// Resume re-enters the chat as the handle recorded in the session store.
// A handle that is no longer registered clears the session.
func (c *Client) Resume(ctx context.Context) (bool, error) {
	ctx = c.withOrigin(ctx)
	handle, ok, err := c.session.Get(ctx, SessionKey)
	if err != nil {
		return false, fmt.Errorf("Get(%s): %w", SessionKey, err)
	}
	if !ok || handle == "" {
		return false, nil
	}
	exists, err := c.room.Users.Exists(ctx, handle)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, c.session.Delete(ctx, SessionKey)
	}
	return true, c.Enter(ctx, handle)
}

// Enter signs handle in: it records the session, opens the general channel
// and starts the presence pulse.
func (c *Client) Enter(ctx context.Context, handle string) error {
	ctx = c.withOrigin(ctx)
	if err := c.session.Set(ctx, SessionKey, handle); err != nil {
		return fmt.Errorf("Set(%s): %w", SessionKey, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = handle
	c.view = ChannelOf(GeneralChannel)

	if err := c.startPulseLocked(ctx); err != nil {
		return err
	}
	return c.room.Reads.MarkRead(ctx, handle, c.view.Key(handle))
}

func (c *Client) startPulseLocked(ctx context.Context) error {
	c.stopPulseLocked()
	// The pulse outlives the request that started it.
	pulseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done, err := c.room.Presence.Pulse(pulseCtx, c.user, c.room.PulseInterval)
	if err != nil {
		cancel()
		return err
	}
	c.stopPulse = cancel
	c.pulseDone = done
	return nil
}

// stopPulseLocked stops the pulse and waits until the presence entry is
// removed.
func (c *Client) stopPulseLocked() {
	if c.stopPulse == nil {
		return
	}
	c.stopPulse()
	<-c.pulseDone
	c.stopPulse = nil
	c.pulseDone = nil
}

// Suspend stops the presence pulse and takes the user offline but keeps the
// session, like closing the page. Resume restarts the pulse.
func (c *Client) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPulseLocked()
}

// Wake restarts the presence pulse of a suspended client. Unlike Resume it
// keeps the thread on screen.
func (c *Client) Wake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == "" {
		return ErrNoUser
	}
	if c.stopPulse != nil {
		return nil
	}
	return c.startPulseLocked(ctx)
}

// Active reports whether the presence pulse is running.
func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopPulse != nil
}

// Leave signs out: the pulse stops, the user goes offline at once and the
// session is cleared.
func (c *Client) Leave(ctx context.Context) error {
	ctx = c.withOrigin(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopPulseLocked()
	if err := c.room.Presence.Remove(ctx, c.user); err != nil {
		return err
	}
	c.user = ""
	c.view = ChannelOf(GeneralChannel)
	if err := c.session.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("Delete(%s): %w", SessionKey, err)
	}
	return nil
}

// OpenChannel shows a channel and marks it read.
func (c *Client) OpenChannel(ctx context.Context, name string) ([]Message, error) {
	if !IsChannel(name) {
		return nil, ErrUnknownChannel
	}
	return c.open(ctx, ChannelOf(name))
}

// OpenDM shows the direct conversation with other and marks it read.
func (c *Client) OpenDM(ctx context.Context, other string) ([]Message, error) {
	other = NormalizeHandle(other)
	if other == "" || other == c.User() {
		return nil, ErrInvalidCounterpart
	}
	exists, err := c.room.Users.Exists(ctx, other)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}
	return c.open(ctx, DirectWith(other))
}

func (c *Client) open(ctx context.Context, t Thread) ([]Message, error) {
	c.mu.Lock()
	if c.user == "" {
		c.mu.Unlock()
		return nil, ErrNoUser
	}
	c.view = t
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Refresh re-reads the thread on screen. Viewing a thread marks it read.
func (c *Client) Refresh(ctx context.Context) ([]Message, error) {
	ctx = c.withOrigin(ctx)
	c.mu.Lock()
	user, view := c.user, c.view
	c.mu.Unlock()
	if user == "" {
		return nil, ErrNoUser
	}

	if err := c.room.Reads.MarkRead(ctx, user, view.Key(user)); err != nil {
		return nil, err
	}
	return c.room.Chat.Messages(ctx, user, view)
}

// Send posts text to the thread on screen. Sending marks the thread read.
func (c *Client) Send(ctx context.Context, text string) (*Message, error) {
	ctx = c.withOrigin(ctx)
	c.mu.Lock()
	user, view := c.user, c.view
	c.mu.Unlock()
	if user == "" {
		return nil, ErrNoUser
	}

	msg, err := c.room.Chat.Send(ctx, user, view, text)
	if err != nil {
		return nil, err
	}
	if err := c.room.Reads.MarkRead(ctx, user, view.Key(user)); err != nil {
		return nil, err
	}
	return msg, nil
}

// Conversations lists the user's direct conversations whose counterpart
// matches query.
func (c *Client) Conversations(ctx context.Context, query string) ([]Conversation, error) {
	user := c.User()
	if user == "" {
		return nil, ErrNoUser
	}
	state, err := c.room.Chat.Load(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := c.room.Reads.Load(ctx, user)
	if err != nil {
		return nil, err
	}
	return FilterConversations(ListDirectConversations(state, rs, user), query), nil
}

// Roster splits every registered user into online and offline.
func (c *Client) Roster(ctx context.Context) (online, offline []string, err error) {
	handles, err := c.room.Users.Handles(ctx)
	if err != nil {
		return nil, nil, err
	}
	p, err := c.room.Presence.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	online, offline = Partition(handles, p, c.room.Clock.Now())
	return online, offline, nil
}

// Watch calls fn whenever another writer rewrites the chat state, the
// presence map or the user directory. fn is not called for the client's own
// writes. The returned function stops watching.
func (c *Client) Watch(fn func(Change)) func() {
	return c.room.Notifier.Subscribe(c.id, func(ch Change) {
		if !watchedKeys[ch.Key] {
			return
		}
		if c.User() == "" {
			return
		}
		fn(ch)
	})
}
