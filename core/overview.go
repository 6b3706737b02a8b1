package core

import (
	"cmp"
	"slices"
	"strings"
)

const emptyConversationPreview = "start a conversation..."

// Conversation summarizes a direct conversation for the conversation list.
type Conversation struct {
	With          string `json:"user"`
	LastTimestamp int64  `json:"last_ts"`
	LastTime      string `json:"last_time"`
	Preview       string `json:"preview"`
	Unread        int    `json:"unread"`
}

// ListDirectConversations summarizes every direct conversation of
// currentUser, most recent first. Conversations without messages sort last.
//
// The list is recomputed from the full state on every call.
func ListDirectConversations(state *ChatState, rs ReadState, currentUser string) []Conversation {
	convs := make([]Conversation, 0)
	for key, msgs := range state.DMs {
		a, b, ok := conversationMembers(key)
		if !ok {
			continue
		}
		var other string
		switch currentUser {
		case a:
			other = b
		case b:
			other = a
		default:
			continue
		}

		conv := Conversation{
			With:    other,
			Preview: emptyConversationPreview,
			Unread:  UnreadCount(rs, currentUser, "dm:"+key, msgs),
		}
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			conv.LastTimestamp = last.TS
			conv.LastTime = last.Time
			conv.Preview = last.Text
		}
		convs = append(convs, conv)
	}

	slices.SortFunc(convs, func(x, y Conversation) int {
		if c := cmp.Compare(y.LastTimestamp, x.LastTimestamp); c != 0 {
			return c
		}
		return cmp.Compare(x.With, y.With)
	})
	return convs
}

// FilterConversations keeps the conversations whose counterpart contains
// query, ignoring case. An empty query keeps everything.
func FilterConversations(convs []Conversation, query string) []Conversation {
	if query == "" {
		return convs
	}
	q := strings.ToLower(query)
	filtered := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.With), q) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
