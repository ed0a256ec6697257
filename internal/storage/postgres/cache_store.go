package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// CacheStore implements storage.CacheStore using PostgreSQL. It backs
// the persistent tier of the result cache so computed payloads survive
// process restarts.
type CacheStore struct {
	pool *Pool
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(pool *Pool) *CacheStore {
	return &CacheStore{pool: pool}
}

var _ storage.CacheStore = (*CacheStore)(nil)

// Get returns the stored value and its write time.
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	var value []byte
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT value, updated_at FROM cache_entries WHERE key = $1`, key,
	).Scan(&value, &updatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, time.Time{}, storage.ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("get cache entry: %w", err)
	}
	return value, updatedAt, nil
}

// Set stores or replaces an entry.
func (s *CacheStore) Set(ctx context.Context, key, class string, value []byte) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO cache_entries (key, class, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET
			class = EXCLUDED.class,
			value = EXCLUDED.value,
			updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, key, class, value); err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// DeleteClass removes every entry of a class.
func (s *CacheStore) DeleteClass(ctx context.Context, class string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE class = $1`, class); err != nil {
		return fmt.Errorf("delete cache class: %w", err)
	}
	return nil
}
