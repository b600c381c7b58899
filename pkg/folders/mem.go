package folders

import (
	"context"
	"sync"
)

// MemStore is an in-memory Settings and AccessList.
type MemStore struct {
	mu       sync.RWMutex
	settings map[string]string
	access   map[string]string
}

var (
	_ Settings   = (*MemStore)(nil)
	_ AccessList = (*MemStore)(nil)
)

func NewMemory() *MemStore {
	return &MemStore{
		settings: map[string]string{},
		access:   map[string]string{},
	}
}

func (s *MemStore) Setting(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *MemStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *MemStore) SetSettings(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.settings[k] = v
	}
	return nil
}

func (s *MemStore) AddAccess(_ context.Context, token, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access[token] = path
	return nil
}

func (s *MemStore) LookupAccess(_ context.Context, token string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.access[token]
	return p, ok, nil
}

func (s *MemStore) RemoveAccess(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, token)
	return nil
}

// Grants returns the number of tokens in the access list.
func (s *MemStore) Grants() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.access)
}
