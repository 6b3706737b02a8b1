package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// ConnManager keeps the websocket connections of every session. A session
// may have several connections open at once.
type ConnManager struct {
	conns   map[string][]*Conn
	nextID  int
	mu      sync.RWMutex
	connWg  *sync.WaitGroup
	context context.Context
	logger  *slog.Logger

	onSessionConnected    func(string)
	onSessionDisconnected func(string)

	upgrader        websocket.Upgrader
	WriteStreamSize int
}

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func WithWriteStreamSize(n int) ManagerOption {
	return func(m *ConnManager) {
		m.WriteStreamSize = n
	}
}

func NewConnManager(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, opts ...ManagerOption) *ConnManager {
	m := &ConnManager{
		connWg:                wg,
		conns:                 make(map[string][]*Conn),
		logger:                logger,
		context:               ctx,
		upgrader:              defaultUpgrader,
		WriteStreamSize:       100,
		onSessionConnected:    func(string) {},
		onSessionDisconnected: func(string) {},
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnSessionConnected registers f to run when a session opens its first
// connection.
func (m *ConnManager) OnSessionConnected(f func(string)) {
	m.onSessionConnected = f
}

// OnSessionDisconnected registers f to run when a session's last connection
// closes.
func (m *ConnManager) OnSessionDisconnected(f func(string)) {
	m.onSessionDisconnected = f
}

func (m *ConnManager) IsConnected(session string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[session]
	return ok
}

// Connect upgrades the request and attaches the connection to session.
func (m *ConnManager) Connect(session string, w http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	conns := m.conns[session]
	first := len(conns) == 0
	wsConn := &Conn{
		session:     session,
		id:          id,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		ticker:      time.NewTicker(pingPeriod),
		logger:      m.logger.With(slog.String("connection", fmt.Sprintf("%s:%d", session, id))),
		notifyDisconnect: func() {
			m.disconnect(session, id)
		},
	}
	m.conns[session] = append(conns, wsConn)
	m.mu.Unlock()

	m.connWg.Add(2)
	go func() {
		defer m.connWg.Done()
		wsConn.readLoop()
	}()
	go func() {
		defer m.connWg.Done()
		wsConn.writeLoop()
	}()

	if first {
		m.onSessionConnected(session)
	}
	return nil
}

// disconnect closes the given connections of session, or all of them when
// no id is given.
func (m *ConnManager) disconnect(session string, ids ...int) {
	m.mu.Lock()
	conns, ok := m.conns[session]
	if !ok {
		m.mu.Unlock()
		return
	}

	remaining := conns[:0]
	for _, c := range conns {
		if len(ids) == 0 || slices.Contains(ids, c.id) {
			c.close()
			continue
		}
		remaining = append(remaining, c)
	}

	last := len(remaining) == 0
	if last {
		delete(m.conns, session)
	} else {
		m.conns[session] = remaining
	}
	m.mu.Unlock()

	if last {
		m.onSessionDisconnected(session)
	}
}

// Disconnect closes every connection of session.
func (m *ConnManager) Disconnect(session string) {
	m.disconnect(session)
}

// Close closes every connection.
func (m *ConnManager) Close() {
	m.mu.RLock()
	sessions := make([]string, 0, len(m.conns))
	for s := range m.conns {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		m.disconnect(s)
	}
}

// Send queues e on every connection.
func (m *ConnManager) Send(e *Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conns := range m.conns {
		for _, conn := range conns {
			conn.enqueue(e)
		}
	}
}

// SendTo queues e on every connection of the given sessions.
func (m *ConnManager) SendTo(e *Event, sessions ...string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range sessions {
		for _, conn := range m.conns[s] {
			conn.enqueue(e)
		}
	}
}
