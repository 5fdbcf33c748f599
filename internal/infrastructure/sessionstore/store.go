// Package sessionstore provides a narrow session-keyed storage interface
// used by the analytics components instead of package-level maps, so the
// in-memory implementation can be swapped for a distributed cache without
// touching the analytics logic.
package sessionstore

import "sync"

// Store holds one value of type T per session id.
type Store[T any] interface {
	Get(sessionID string) (T, bool)
	Set(sessionID string, value T)
	Delete(sessionID string)
}

// MemoryStore is a mutex-guarded in-process Store implementation.
// Session state is lost on restart.
type MemoryStore[T any] struct {
	mu     sync.RWMutex
	values map[string]T
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{values: make(map[string]T)}
}

func (s *MemoryStore[T]) Get(sessionID string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[sessionID]
	return v, ok
}

func (s *MemoryStore[T]) Set(sessionID string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[sessionID] = value
}

func (s *MemoryStore[T]) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, sessionID)
}

// Keys returns a snapshot of the stored session ids.
func (s *MemoryStore[T]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}
