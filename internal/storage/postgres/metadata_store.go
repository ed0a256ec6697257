package postgres

import (
	"context"
	"fmt"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// MetadataStore implements storage.MetadataStore using PostgreSQL.
type MetadataStore struct {
	pool *Pool
}

// NewMetadataStore creates a new MetadataStore.
func NewMetadataStore(pool *Pool) *MetadataStore {
	return &MetadataStore{pool: pool}
}

var _ storage.MetadataStore = (*MetadataStore)(nil)

// Get returns the value for key. Returns ErrNotFound when unset.
func (s *MetadataStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM pipeline_metadata WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return value, nil
}

// Set stores or replaces the value for key.
func (s *MetadataStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO pipeline_metadata (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}
