package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

type cacheEntry struct {
	class     string
	value     []byte
	updatedAt time.Time
}

// CacheStore is an in-memory implementation of storage.CacheStore.
type CacheStore struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
}

// NewCacheStore creates a new in-memory cache store.
func NewCacheStore() *CacheStore {
	return &CacheStore{data: make(map[string]cacheEntry)}
}

var _ storage.CacheStore = (*CacheStore)(nil)

// Get retrieves a cached value and its write time.
func (s *CacheStore) Get(_ context.Context, key string) ([]byte, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, time.Time{}, storage.ErrNotFound
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, entry.updatedAt, nil
}

// Set writes or replaces a cache entry under its class.
func (s *CacheStore) Set(_ context.Context, key, class string, value []byte) error {
	if key == "" || class == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = cacheEntry{class: class, value: stored, updatedAt: time.Now().UTC()}
	return nil
}

// Delete removes one cache entry. Missing keys are not an error.
func (s *CacheStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// DeleteClass removes every entry tagged with the class.
func (s *CacheStore) DeleteClass(_ context.Context, class string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.data {
		if entry.class == class {
			delete(s.data, key)
		}
	}
	return nil
}
