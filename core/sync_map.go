package core

import "sync"

// SyncMap is an implementation of a map that is safe for concurrent usage.
type SyncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok = s.m[key]
	return
}

// LoadOrStore returns the value for key if present. Otherwise it stores the
// value produced by f and returns it. f runs under the write lock.
func (s *SyncMap[K, V]) LoadOrStore(key K, f func() V) (value V, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.m[key]; ok {
		return value, true
	}
	value = f()
	s.m[key] = value
	return value, false
}

func (s *SyncMap[K, V]) Store(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *SyncMap[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// LoadAndDelete removes key and returns the value it held.
func (s *SyncMap[K, V]) LoadAndDelete(key K) (value V, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok = s.m[key]
	delete(s.m, key)
	return
}

func (s *SyncMap[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *SyncMap[K, V]) RRange(f func(key K, value V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.m {
		if !f(k, v) {
			break
		}
	}
}
