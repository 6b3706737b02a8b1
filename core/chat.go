package core

import (
	"encoding/json"
	"strings"
)

// GeneralChannel is the public channel every user starts in.
const GeneralChannel = "general"

type Channel struct {
	Name        string `json:"name"`
	Description string `json:"desc"`
}

// Channels is the static set of channels.
var Channels = []Channel{
	{Name: GeneralChannel, Description: "public chatroom"},
}

func IsChannel(name string) bool {
	for _, ch := range Channels {
		if ch.Name == name {
			return true
		}
	}
	return false
}

// Message is a chat message. Messages are never edited once appended.
type Message struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Text string `json:"text"`
	// TS is the send time in epoch milliseconds.
	TS int64 `json:"ts"`
	// Time is the HH:MM label of the sender's clock at send time.
	// It is never recomputed.
	Time string `json:"time"`
}

type ThreadKind int

const (
	ChannelThread ThreadKind = iota
	DirectThread
)

// Thread selects a message list relative to the current user: a channel by
// name, or the direct conversation with another user.
type Thread struct {
	Kind ThreadKind `json:"-"`
	// Name is the channel name or the other user's handle.
	Name string `json:"name"`
}

func ChannelOf(name string) Thread {
	return Thread{Kind: ChannelThread, Name: name}
}

func DirectWith(user string) Thread {
	return Thread{Kind: DirectThread, Name: user}
}

// Key returns the read state key of the thread as seen by currentUser.
func (t Thread) Key(currentUser string) string {
	if t.Kind == DirectThread {
		return DirectThreadKey(currentUser, t.Name)
	}
	return ChannelThreadKey(t.Name)
}

func (t Thread) KindName() string {
	if t.Kind == DirectThread {
		return "dm"
	}
	return "channel"
}

// DirectConversationKey identifies the conversation between a and b.
// The handles are sorted so both users resolve to the same list.
func DirectConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "::" + b
}

// conversationMembers splits a direct conversation key.
func conversationMembers(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, "::")
	if !ok || a == "" || b == "" || strings.Contains(b, "::") {
		return "", "", false
	}
	return a, b, true
}

func ChannelThreadKey(name string) string {
	return "channel:" + name
}

func DirectThreadKey(a, b string) string {
	return "dm:" + DirectConversationKey(a, b)
}

// ChatState holds the messages of every thread. Each list is append only
// and in send order.
type ChatState struct {
	Channels map[string][]Message `json:"channels"`
	DMs      map[string][]Message `json:"dms"`
}

func DefaultChatState() *ChatState {
	return &ChatState{
		Channels: map[string][]Message{GeneralChannel: {}},
		DMs:      map[string][]Message{},
	}
}

// normalize repairs the state in place: both maps exist, the general
// channel exists and no thread list is nil.
func (s *ChatState) normalize() {
	if s.Channels == nil {
		s.Channels = make(map[string][]Message)
	}
	if s.DMs == nil {
		s.DMs = make(map[string][]Message)
	}
	if _, ok := s.Channels[GeneralChannel]; !ok {
		s.Channels[GeneralChannel] = []Message{}
	}
	for k, v := range s.Channels {
		if v == nil {
			s.Channels[k] = []Message{}
		}
	}
	for k, v := range s.DMs {
		if v == nil {
			s.DMs[k] = []Message{}
		}
	}
}

func (s *ChatState) list(currentUser string, t Thread) (map[string][]Message, string) {
	if t.Kind == DirectThread {
		return s.DMs, DirectConversationKey(currentUser, t.Name)
	}
	return s.Channels, t.Name
}

// Messages returns the thread's messages. A thread never written to is empty.
func (s *ChatState) Messages(currentUser string, t Thread) []Message {
	s.normalize()
	m, key := s.list(currentUser, t)
	if msgs, ok := m[key]; ok {
		return msgs
	}
	return []Message{}
}

// Append adds msg at the end of the thread, creating the thread if needed.
func (s *ChatState) Append(currentUser string, t Thread, msg Message) {
	s.normalize()
	m, key := s.list(currentUser, t)
	m[key] = append(m[key], msg)
}

// decodeChatState parses a stored state. It never fails: anything it cannot
// make sense of is replaced by its default.
func decodeChatState(raw string) *ChatState {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil || top == nil {
		return DefaultChatState()
	}

	state := &ChatState{
		Channels: decodeThreads(top["channels"]),
		DMs:      decodeThreads(top["dms"]),
	}
	state.normalize()
	return state
}

func decodeThreads(raw json.RawMessage) map[string][]Message {
	threads := make(map[string][]Message)
	if len(raw) == 0 {
		return threads
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return threads
	}
	for key, list := range m {
		threads[key] = decodeMessages(list)
	}
	return threads
}

// decodeMessages keeps the messages it can decode. A value that is not a
// list becomes an empty list.
func decodeMessages(raw json.RawMessage) []Message {
	msgs := []Message{}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return msgs
	}
	for _, item := range items {
		if string(item) == "null" {
			continue
		}
		var msg Message
		if err := json.Unmarshal(item, &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
