package core

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	// ChangedEvent tells a client that a watched key was rewritten and its
	// view should be re-read.
	ChangedEvent = "changed"
)

// Event is the frame pushed to websocket clients.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Payload.Size: %d}", e.Type, len(e.Payload))
}

func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

// NewChangedEvent builds the event announcing c. The writer's origin is not
// disclosed.
func NewChangedEvent(c Change) *Event {
	e, _ := NewEvent(ChangedEvent, Change{Key: c.Key})
	return e
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}
