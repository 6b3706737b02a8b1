package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectConversationKey(t *testing.T) {
	assert.Equal(t, "alice::bob", DirectConversationKey("alice", "bob"))
	assert.Equal(t, "alice::bob", DirectConversationKey("bob", "alice"))
	assert.Equal(t, DirectConversationKey("zed", "amy"), DirectConversationKey("amy", "zed"))
}

func TestLoadChatState(t *testing.T) {
	valid := `{"id":"1-abc","from":"alice","text":"hi","ts":1,"time":"00:00"}`

	tests := []struct {
		name     string
		raw      *string
		general  int
		dmCounts map[string]int
	}{
		{name: "absent"},
		{name: "empty string", raw: ptr("")},
		{name: "not json", raw: ptr("{oops")},
		{name: "array", raw: ptr("[]")},
		{name: "null", raw: ptr("null")},
		{name: "number", raw: ptr("42")},
		{name: "channels not an object", raw: ptr(`{"channels":5,"dms":"x"}`)},
		{name: "thread not a list", raw: ptr(`{"channels":{"general":"x"},"dms":{"alice::bob":{}}}`),
			dmCounts: map[string]int{"alice::bob": 0}},
		{name: "missing general", raw: ptr(`{"channels":{},"dms":{}}`)},
		{name: "bad messages dropped", raw: ptr(`{"channels":{"general":[` + valid + `,"junk",null,7]},"dms":{"alice::bob":[` + valid + `]}}`),
			general: 1, dmCounts: map[string]int{"alice::bob": 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := NewBaseFixture(t)
			defer f.tearDown()

			if tc.raw != nil {
				require.NoError(t, f.kv.Set(f.ctx, ChatStateKey, *tc.raw))
			}

			state, err := NewChatStore(f.kv, f.clock).Load(f.ctx)
			require.NoError(t, err)
			require.NotNil(t, state.Channels)
			require.NotNil(t, state.DMs)
			require.NotNil(t, state.Channels[GeneralChannel])
			assert.Len(t, state.Channels[GeneralChannel], tc.general)
			assert.Len(t, state.DMs, len(tc.dmCounts))
			for key, n := range tc.dmCounts {
				require.NotNil(t, state.DMs[key])
				assert.Len(t, state.DMs[key], n)
			}
		})
	}
}

func ptr(s string) *string {
	return &s
}

func TestSaveChatState(t *testing.T) {
	t.Run("normalizes", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		store := NewChatStore(f.kv, f.clock)
		require.NoError(t, store.Save(f.ctx, &ChatState{}))

		raw, ok, err := f.kv.Get(f.ctx, ChatStateKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"channels":{"general":[]},"dms":{}}`, raw)
	})

	t.Run("initialize keeps existing state", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		store := NewChatStore(f.kv, f.clock)
		require.NoError(t, store.Initialize(f.ctx))
		_, err := store.Send(f.ctx, "alice", ChannelOf(GeneralChannel), "hello")
		require.NoError(t, err)
		require.NoError(t, store.Initialize(f.ctx))

		msgs, err := store.Messages(f.ctx, "alice", ChannelOf(GeneralChannel))
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})
}

func TestSend(t *testing.T) {
	t.Run("general channel", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()
		f.clock.Set(1000)

		store := NewChatStore(f.kv, f.clock)
		msg, err := store.Send(f.ctx, "alice", ChannelOf(GeneralChannel), "  hello ")
		require.NoError(t, err)
		assert.Equal(t, "hello", msg.Text)
		assert.True(t, strings.HasPrefix(msg.ID, "1000-"))

		state, err := store.Load(f.ctx)
		require.NoError(t, err)
		require.Len(t, state.Channels[GeneralChannel], 1)
		got := state.Channels[GeneralChannel][0]
		assert.Equal(t, "alice", got.From)
		assert.Equal(t, "hello", got.Text)
		assert.Equal(t, int64(1000), got.TS)
		assert.Equal(t, "00:00", got.Time)
	})

	t.Run("direct conversation", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		store := NewChatStore(f.kv, f.clock)
		_, err := store.Send(f.ctx, "bob", DirectWith("alice"), "hi")
		require.NoError(t, err)

		state, err := store.Load(f.ctx)
		require.NoError(t, err)
		require.Contains(t, state.DMs, "alice::bob")
		assert.NotContains(t, state.DMs, "bob::alice")

		fromAlice, err := store.Messages(f.ctx, "alice", DirectWith("bob"))
		require.NoError(t, err)
		fromBob, err := store.Messages(f.ctx, "bob", DirectWith("alice"))
		require.NoError(t, err)
		assert.Equal(t, fromAlice, fromBob)
	})

	t.Run("appends in order", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		store := NewChatStore(f.kv, f.clock)
		for _, text := range []string{"one", "two", "three"} {
			f.clock.Advance(time.Second)
			_, err := store.Send(f.ctx, "alice", ChannelOf(GeneralChannel), text)
			require.NoError(t, err)
		}

		msgs, err := store.Messages(f.ctx, "alice", ChannelOf(GeneralChannel))
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "one", msgs[0].Text)
		assert.Equal(t, "three", msgs[2].Text)
		assert.Less(t, msgs[0].TS, msgs[2].TS)
	})

	t.Run("time label frozen at send time", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		clock := ClockFunc(func() time.Time {
			return time.UnixMilli(0).In(time.FixedZone("UTC+5", 5*60*60))
		})
		_, err := NewChatStore(f.kv, clock).Send(f.ctx, "alice", ChannelOf(GeneralChannel), "hello")
		require.NoError(t, err)

		msgs, err := NewChatStore(f.kv, f.clock).Messages(f.ctx, "alice", ChannelOf(GeneralChannel))
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "05:00", msgs[0].Time)
	})

	rejections := []struct {
		name   string
		sender string
		thread Thread
		text   string
		err    error
	}{
		{"empty text", "alice", ChannelOf(GeneralChannel), "   ", ErrEmptyMessage},
		{"unknown channel", "alice", ChannelOf("random"), "hello", ErrUnknownChannel},
		{"direct to self", "alice", DirectWith("alice"), "hello", ErrInvalidCounterpart},
		{"direct to nobody", "alice", DirectWith(""), "hello", ErrInvalidCounterpart},
		{"signed out", "", ChannelOf(GeneralChannel), "hello", ErrNoUser},
	}
	for _, tc := range rejections {
		t.Run(tc.name, func(t *testing.T) {
			f := NewBaseFixture(t)
			defer f.tearDown()

			msg, err := NewChatStore(f.kv, f.clock).Send(f.ctx, tc.sender, tc.thread, tc.text)
			require.Nil(t, msg)
			assert.ErrorIs(t, err, tc.err)

			_, ok, err := f.kv.Get(f.ctx, ChatStateKey)
			require.NoError(t, err)
			assert.False(t, ok, "state must not be written")
		})
	}
}

func TestMessageJSON(t *testing.T) {
	msg := NewMessage("alice", "hello", time.UnixMilli(1000).UTC())
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.ElementsMatch(t, []string{"id", "from", "text", "ts", "time"}, keys(fields))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
