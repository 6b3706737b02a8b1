package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one websocket connection. The feed is push only: frames sent by
// the peer are read and discarded so control frames keep flowing.
type Conn struct {
	conn             *websocket.Conn
	context          context.Context
	session          string
	id               int
	writeStream      chan *Event
	notifyDisconnect func()
	ticker           *time.Ticker
	logger           *slog.Logger
}

func (c *Conn) close() {
	close(c.writeStream)
}

// enqueue must be called with the manager's lock held so it never races
// with close.
func (c *Conn) enqueue(e *Event) {
	select {
	case c.writeStream <- e:
	default:
		c.logger.Warn(fmt.Sprintf("write stream full, dropping %v", e))
	}
}

func (c *Conn) readLoop() {
	c.logger.Info("read loop started")
	defer func() {
		c.notifyDisconnect()
		c.conn.Close()
		c.logger.Info("read loop stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}
		if _, err := io.Copy(io.Discard, r); err != nil {
			c.logger.Error(fmt.Sprintf("discard frame: %v", err))
			return
		}
	}
}

func (c *Conn) writeLoop() {
	c.logger.Info("write loop started")
	defer func() {
		c.ticker.Stop()
		c.logger.Info("write loop stopped")
	}()

	for {
		select {
		case e, ok := <-c.writeStream:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				c.logger.Info("sending close message")
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Error(fmt.Sprintf("getting next writer: %v", err))
				c.conn.Close()
				return
			}
			if err := EncodeEvent(w, e); err != nil {
				c.logger.Error(err.Error())
			}
			w.Close()
		case <-c.context.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			c.logger.Info("context done")
			return
		case <-c.ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("writing ping: %v", err))
				c.conn.Close()
				return
			}
		}
	}
}
