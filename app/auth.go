package n14

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nil071n/N14/core"
	"github.com/nil071n/N14/pkg/router"
)

const SessionCookieName = "n14_session"

var errSignedOut = errors.New("session signed out")

type sessionKey struct{}

// Session is one signed in browser tab.
type Session struct {
	ID     string
	Client *core.Client
}

func contextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

func sessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(Session)
	return session, ok
}

// SessionFromRequest extracts the session from the request context.
// It must be called in handlers that are protected by the session middleware.
// It panics if the session is not found in the request context.
func SessionFromRequest(r *http.Request) Session {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		panic("session not found in request context: call this function in handlers that are protected by SessionMiddleware")
	}
	return session
}

// sessionEntry is a registered session. lastSeen is the unix ms time of its
// last authenticated request.
type sessionEntry struct {
	client    *core.Client
	expiresAt time.Time
	lastSeen  atomic.Int64
}

func (e *sessionEntry) touch(now time.Time) {
	e.lastSeen.Store(now.UnixMilli())
}

// SessionRegistry maps session ids to their clients. A session without a
// websocket connection and without requests for longer than idle is suspended.
// Signed out and expired sessions are dropped.
type SessionRegistry struct {
	room    *core.Chatroom
	entries *core.SyncMap[string, *sessionEntry]
	// revoked holds signed out session ids until their token expires.
	revoked *core.SyncMap[string, time.Time]
	secret  []byte
	ttl     time.Duration
	idle    time.Duration
	now     func() time.Time
}

func NewSessionRegistry(room *core.Chatroom, secret []byte, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		room:    room,
		entries: core.NewSyncMap[string, *sessionEntry](),
		revoked: core.NewSyncMap[string, time.Time](),
		secret:  secret,
		ttl:     ttl,
		idle:    core.PresenceTTL,
		now:     time.Now,
	}
}

type SessionResponse struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Open creates a client, runs enter on it and registers it under a new
// session id. The returned cookie carries the session token.
func (s *SessionRegistry) Open(enter func(*core.Client) error) (*http.Cookie, *SessionResponse, error) {
	client := s.room.NewClient(nil)
	if err := enter(client); err != nil {
		return nil, nil, err
	}

	sid := uuid.NewString()
	token, exp, err := core.NewToken(client.User(), sid, s.ttl, s.secret)
	if err != nil {
		client.Suspend()
		return nil, nil, fmt.Errorf("NewToken: %w", err)
	}
	entry := &sessionEntry{client: client, expiresAt: exp}
	entry.touch(s.now())
	s.entries.Store(sid, entry)

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	return cookie, &SessionResponse{Username: client.User(), ExpiresAt: exp}, nil
}

// Client returns the client of session sid.
func (s *SessionRegistry) Client(sid string) (*core.Client, bool) {
	entry, ok := s.entries.Load(sid)
	if !ok {
		return nil, false
	}
	return entry.client, true
}

// Len returns the number of registered sessions.
func (s *SessionRegistry) Len() int {
	return s.entries.Len()
}

// Close signs the session out and forgets it. Its token is refused until it
// expires.
func (s *SessionRegistry) Close(ctx context.Context, sid string) error {
	entry, ok := s.entries.Load(sid)
	if !ok {
		return nil
	}
	if err := entry.client.Leave(ctx); err != nil {
		return err
	}
	s.revoked.Store(sid, entry.expiresAt)
	s.entries.Delete(sid)
	return nil
}

// restore returns the client of the session in claims and marks the session
// as seen. A session unknown to this process, after a restart or on another
// node, is resumed from the handle in the token. A suspended session is woken
// up.
func (s *SessionRegistry) restore(ctx context.Context, claims *core.SessionClaims) (*core.Client, error) {
	if _, ok := s.revoked.Load(claims.SessionID); ok {
		return nil, errSignedOut
	}

	entry, loaded := s.entries.LoadOrStore(claims.SessionID, func() *sessionEntry {
		session := core.NewMemoryStore()
		session.Set(ctx, core.SessionKey, claims.Username)
		e := &sessionEntry{client: s.room.NewClient(session)}
		if claims.ExpiresAt != nil {
			e.expiresAt = claims.ExpiresAt.Time
		}
		return e
	})
	entry.touch(s.now())

	if !loaded {
		ok, err := entry.client.Resume(ctx)
		if err != nil || !ok {
			s.entries.Delete(claims.SessionID)
		}
		if err != nil {
			return nil, err
		}
		return entry.client, nil
	}

	if entry.client.User() != "" && !entry.client.Active() {
		if err := entry.client.Wake(ctx); err != nil {
			return nil, fmt.Errorf("Wake: %w", err)
		}
	}
	return entry.client, nil
}

// Reap suspends the sessions idle at now and drops the expired ones.
// connected reports whether a session has an open websocket connection.
func (s *SessionRegistry) Reap(now time.Time, connected func(sid string) bool) {
	var released, expired, idle []string
	s.revoked.RRange(func(sid string, exp time.Time) bool {
		if now.After(exp) {
			released = append(released, sid)
		}
		return true
	})
	for _, sid := range released {
		s.revoked.Delete(sid)
	}

	s.entries.RRange(func(sid string, e *sessionEntry) bool {
		switch {
		case !e.expiresAt.IsZero() && now.After(e.expiresAt):
			expired = append(expired, sid)
		case e.client.Active() && !connected(sid) &&
			now.Sub(time.UnixMilli(e.lastSeen.Load())) > s.idle:
			idle = append(idle, sid)
		}
		return true
	})

	for _, sid := range expired {
		if e, ok := s.entries.LoadAndDelete(sid); ok {
			e.client.Suspend()
			s.room.Logger.Debug("session expired", slog.String("session", sid))
		}
	}
	for _, sid := range idle {
		if e, ok := s.entries.Load(sid); ok {
			e.client.Suspend()
			s.room.Logger.Debug("session idle", slog.String("session", sid))
		}
	}
}

// SuspendAll takes every session offline.
func (s *SessionRegistry) SuspendAll() {
	var clients []*core.Client
	s.entries.RRange(func(_ string, e *sessionEntry) bool {
		clients = append(clients, e.client)
		return true
	})
	for _, c := range clients {
		c.Suspend()
	}
}

func expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Path:     "/",
	}
}

// SessionMiddleware validates the session cookie and attaches the session to
// the request context. The session is guaranteed to be signed in for
// subsequent handlers.
func SessionMiddleware(s *SessionRegistry) router.Middleware {

	return func(next http.Handler) router.HandlerFunc {

		authErr := router.NewJsonError(http.StatusUnauthorized, "unauthenticated")

		return router.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Valid() != nil {
				return authErr
			}

			claims, err := core.VerifyToken(cookie.Value, s.secret)
			if err != nil {
				if errors.Is(err, core.ErrTokenExpired) || errors.Is(err, core.ErrTokenInvalid) ||
					errors.Is(err, core.ErrUnrecognizedToken) {
					return authErr
				}
				return err
			}

			client, err := s.restore(r.Context(), claims)
			if errors.Is(err, errSignedOut) {
				return authErr
			}
			if err != nil {
				return err
			}
			if client.User() == "" || client.User() != claims.Username {
				return authErr
			}

			session := Session{ID: claims.SessionID, Client: client}
			next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), session)))
			return nil
		})
	}
}
