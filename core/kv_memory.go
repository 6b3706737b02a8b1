package core

import (
	"context"
	"sort"
	"strings"
)

// MemoryStore is a KVStore living in process memory. It backs session
// scoped storage and the "memory" storage driver.
type MemoryStore struct {
	m *SyncMap[string, string]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: NewSyncMap[string, string]()}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.m.Load(key)
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.m.Store(key, value)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.m.Delete(key)
	return nil
}

// Keys returns the stored keys starting with prefix in lexical order.
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	s.m.RRange(func(key, _ string) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}
