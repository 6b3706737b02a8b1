package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const DefaultChangeSubject = "n14.changes"

type natsChange struct {
	Key  string `json:"key"`
	Node string `json:"node"`
}

// NATSBridge relays changes between processes sharing one store.
// Local changes are published on subject; changes published by other nodes
// are fed into the local notifier.
type NATSBridge struct {
	nc          *nats.Conn
	subject     string
	notifier    *Notifier
	node        string
	logger      *slog.Logger
	sub         *nats.Subscription
	unsubscribe func()
}

func NewNATSBridge(nc *nats.Conn, subject string, notifier *Notifier, logger *slog.Logger) *NATSBridge {
	if subject == "" {
		subject = DefaultChangeSubject
	}
	return &NATSBridge{
		nc:       nc,
		subject:  subject,
		notifier: notifier,
		node:     uuid.NewString(),
		logger:   logger,
	}
}

// origin is the notifier origin of changes received from other nodes.
// The bridge subscribes under it so relayed changes are not sent back out.
func (b *NATSBridge) origin() string {
	return "nats:" + b.node
}

func (b *NATSBridge) Start() error {
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		var c natsChange
		if err := json.Unmarshal(m.Data, &c); err != nil {
			b.logger.Error(fmt.Sprintf("decode change: %v", err))
			return
		}
		if c.Node == b.node {
			return
		}
		b.notifier.Publish(Change{Key: c.Key, Origin: b.origin()})
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	b.sub = sub

	b.unsubscribe = b.notifier.Subscribe(b.origin(), func(c Change) {
		if strings.HasPrefix(c.Origin, "nats:") {
			return
		}
		data, err := json.Marshal(natsChange{Key: c.Key, Node: b.node})
		if err != nil {
			b.logger.Error(fmt.Sprintf("encode change: %v", err))
			return
		}
		if err := b.nc.Publish(b.subject, data); err != nil {
			b.logger.Error(fmt.Sprintf("publish change: %v", err))
		}
	})
	b.logger.Info(fmt.Sprintf("relaying store changes on %s", b.subject))
	return nil
}

func (b *NATSBridge) Close() error {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", b.subject, err)
		}
	}
	return nil
}
