package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// Keys of the shared store. They form the on-store schema and must stay stable.
const (
	UsersKey        = "n14_users"
	SessionKey      = "n14_current_user"
	ChatStateKey    = "n14_chat_state_v1"
	PresenceKey     = "n14_presence_v1"
	ReadStatePrefix = "n14_read_state_"
)

// KVStore is a synchronous string key-value store. Every client of the
// chatroom reads and writes the same store, the way browser tabs share
// local storage.
type KVStore interface {
	// Get returns the value stored under key. ok is false if the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	Set(ctx context.Context, key, value string) error

	Delete(ctx context.Context, key string) error
}

// ListableStore is a KVStore that can enumerate its keys. MemoryStore,
// SQLiteStore and RedisStore all implement it.
type ListableStore interface {
	KVStore
	// Keys returns the keys starting with prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// loadJSON decodes the value stored under key into v.
// An absent or malformed value is not an error: it reports false and the
// caller substitutes its default.
func loadJSON(ctx context.Context, kv KVStore, key string, v any) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("Get(%s): %w", key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, nil
	}
	return true, nil
}

func saveJSON(ctx context.Context, kv KVStore, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("Set(%s): %w", key, err)
	}
	return nil
}

// loadTimestamps reads a map of handle or thread key to epoch milliseconds.
func loadTimestamps(ctx context.Context, kv KVStore, key string) (map[string]int64, error) {
	var m map[string]int64
	ok, err := loadJSON(ctx, kv, key, &m)
	if err != nil {
		return nil, err
	}
	if !ok || m == nil {
		return make(map[string]int64), nil
	}
	return m, nil
}
