package storage

import (
	"fmt"
	"sync"
)

// MemoryStore keeps fragments in a map. It honours the capacity quota but
// ignores the free disk percentage.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	quota  *quota
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		data:  make(map[string][]byte),
		quota: newQuota(cfg.MaxCapacity),
	}
}

// Size returns the stored length of key.
func (s *MemoryStore) Size(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	data, ok := s.data[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return int64(len(data)), nil
}

// Read copies the fragment stored under key into buf.
func (s *MemoryStore) Read(key string, buf []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	data, ok := s.data[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return copy(buf, data), nil
}

// Write stores a copy of data under key.
func (s *MemoryStore) Write(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.data[key]; ok {
		return ErrAlreadyExists
	}
	if err := s.quota.reserve(int64(len(data))); err != nil {
		return err
	}
	s.data[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if data, ok := s.data[key]; ok {
		s.quota.release(int64(len(data)))
		delete(s.data, key)
	}
	return nil
}

// Flush drops every fragment and closes the store.
func (s *MemoryStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = make(map[string][]byte)
	s.quota.reset()
	return nil
}

// Len returns the number of stored fragments.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Used returns the payload bytes currently stored.
func (s *MemoryStore) Used() int64 {
	return s.quota.Used()
}
