package memory

import (
	"context"
	"sync"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// MetadataStore is an in-memory implementation of storage.MetadataStore.
type MetadataStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMetadataStore creates a new in-memory metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{data: make(map[string]string)}
}

var _ storage.MetadataStore = (*MetadataStore)(nil)

// Get retrieves a metadata value by key.
func (s *MetadataStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

// Set writes or replaces a metadata value.
func (s *MetadataStore) Set(_ context.Context, key, value string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}
