package session

import (
	"sync"
)

// InMemoryStorage is a Storage kept in process memory. Nothing survives a
// restart; it is the fallback when no durable backend is configured.
type InMemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Storage = (*InMemoryStorage)(nil)

// NewInMemoryStorage creates an empty in-memory storage
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		values: make(map[string]string),
	}
}

func (s *InMemoryStorage) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *InMemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *InMemoryStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}
