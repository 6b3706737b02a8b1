package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnreadCount(t *testing.T) {
	msgs := []Message{
		{From: "alice", TS: 1000},
		{From: "bob", TS: 2000},
		{From: "carol", TS: 3000},
		{From: "alice", TS: 4000},
	}
	key := ChannelThreadKey(GeneralChannel)

	tests := []struct {
		name string
		rs   ReadState
		user string
		want int
	}{
		{"never read counts foreign messages", ReadState{}, "bob", 3},
		{"own messages never count", ReadState{}, "alice", 2},
		{"read watermark", ReadState{key: 2500}, "bob", 2},
		{"read at message time", ReadState{key: 4000}, "bob", 0},
		{"other thread read", ReadState{"channel:other": 9999}, "bob", 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, UnreadCount(tc.rs, tc.user, key, msgs))
		})
	}

	assert.Equal(t, 0, UnreadCount(ReadState{}, "bob", key, nil))
}

func TestMarkRead(t *testing.T) {
	t.Run("unread then read", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		chat := NewChatStore(f.kv, f.clock)
		reads := NewReadStateTracker(f.kv, f.clock)
		key := ChannelThreadKey(GeneralChannel)

		f.clock.Set(1000)
		_, err := chat.Send(f.ctx, "alice", ChannelOf(GeneralChannel), "hello")
		require.NoError(t, err)

		msgs, err := chat.Messages(f.ctx, "bob", ChannelOf(GeneralChannel))
		require.NoError(t, err)

		n, err := reads.UnreadCount(f.ctx, "bob", key, msgs)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		f.clock.Set(2000)
		require.NoError(t, reads.MarkRead(f.ctx, "bob", key))

		n, err = reads.UnreadCount(f.ctx, "bob", key, msgs)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		rs, err := reads.Load(f.ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, ReadState{key: 2000}, rs)

		raw, ok, err := f.kv.Get(f.ctx, ReadStatePrefix+"bob")
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"channel:general":2000}`, raw)
	})

	t.Run("no user", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		reads := NewReadStateTracker(f.kv, f.clock)
		require.NoError(t, reads.MarkRead(f.ctx, "", ChannelThreadKey(GeneralChannel)))

		keys, err := f.kv.Keys(f.ctx, ReadStatePrefix)
		require.NoError(t, err)
		assert.Empty(t, keys)

		rs, err := reads.Load(f.ctx, "")
		require.NoError(t, err)
		assert.Empty(t, rs)
	})

	t.Run("malformed state", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		require.NoError(t, f.kv.Set(f.ctx, ReadStatePrefix+"bob", "[1,2]"))
		rs, err := NewReadStateTracker(f.kv, f.clock).Load(f.ctx, "bob")
		require.NoError(t, err)
		assert.NotNil(t, rs)
		assert.Empty(t, rs)
	})
}
