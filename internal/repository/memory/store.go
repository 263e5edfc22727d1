package memory

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/utafrali/marketplace/pkg/errors"
)

var (
	// ErrQuotaExceeded is returned by Set when the write would push the
	// store past its byte quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrStorageDisabled is returned by every call once Disable was called.
	ErrStorageDisabled = errors.New("storage disabled")
)

// Store is an in-process KVStore with an optional byte quota. Usage is
// counted as len(key)+len(value) for every entry.
type Store struct {
	mu       sync.RWMutex
	data     map[string][]byte
	used     int
	quota    int
	disabled bool
}

// NewStore creates a store. A quota of 0 or less means unlimited.
func NewStore(quota int) *Store {
	return &Store{
		data:  make(map[string][]byte),
		quota: quota,
	}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.disabled {
		return nil, ErrStorageDisabled
	}
	v, ok := s.data[key]
	if !ok {
		return nil, apperrors.NotFound("storage key", key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value under key, enforcing the quota.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		return ErrStorageDisabled
	}

	used := s.used
	if old, ok := s.data[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)
	if s.quota > 0 && used > s.quota {
		return ErrQuotaExceeded
	}

	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	s.used = used
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		return ErrStorageDisabled
	}
	if old, ok := s.data[key]; ok {
		s.used -= len(key) + len(old)
		delete(s.data, key)
	}
	return nil
}

// Exists reports whether key is present.
func (s *Store) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Used returns the bytes currently counted against the quota.
func (s *Store) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Disable makes every subsequent call fail, the way storage behaves when a
// browser profile has it turned off.
func (s *Store) Disable() {
	s.mu.Lock()
	s.disabled = true
	s.mu.Unlock()
}

// Enable reverses Disable.
func (s *Store) Enable() {
	s.mu.Lock()
	s.disabled = false
	s.mu.Unlock()
}
