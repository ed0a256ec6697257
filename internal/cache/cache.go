// Package cache implements a read-through cache over an ordered list
// of tiers: an in-process TTL map, then an optional persistent
// CacheStore, with a loader behind the last tier. Concurrent misses on
// the same key collapse into a single load.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// Key classes. Each class carries its own TTL and is invalidated as a
// unit when the data behind it is rewritten.
const (
	ClassReference = "reference"
	ClassResult    = "result"
)

// LoaderFunc produces the value for a key on a full cache miss.
type LoaderFunc func(ctx context.Context) ([]byte, error)

// Options configures a Cache.
type Options struct {
	// ReferenceTTL bounds the age of ClassReference entries.
	ReferenceTTL time.Duration
	// ResultTTL bounds the age of ClassResult entries.
	ResultTTL time.Duration
	// Store is the persistent tier. Optional; nil means memory-only.
	Store storage.CacheStore
	// OnHit reports a hit per tier ("memory" or "store"). Optional.
	OnHit func(tier string)
	// OnMiss reports a full miss, i.e. a loader invocation. Optional.
	OnMiss func()
}

// tier is one level of the read path. Tiers are consulted in order; a
// hit at position i backfills positions 0..i-1.
type tier interface {
	name() string
	get(ctx context.Context, key, class string) ([]byte, bool)
	set(ctx context.Context, key, class string, value []byte)
	remove(ctx context.Context, key string) error
	removeClass(ctx context.Context, class string) error
}

// Cache reads through an ordered tier list with per-class TTLs.
type Cache struct {
	opts  Options
	tiers []tier
	group singleflight.Group
}

// New creates a Cache. The tier order is fixed: memory first, then the
// persistent store when one is configured.
func New(opts Options) *Cache {
	if opts.ReferenceTTL <= 0 {
		opts.ReferenceTTL = 24 * time.Hour
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = time.Hour
	}
	c := &Cache{opts: opts}
	c.tiers = append(c.tiers, newMemoryTier(c.ttlFor))
	if opts.Store != nil {
		c.tiers = append(c.tiers, &storeTier{store: opts.Store, ttl: c.ttlFor})
	}
	return c
}

func (c *Cache) ttlFor(class string) time.Duration {
	if class == ClassReference {
		return c.opts.ReferenceTTL
	}
	return c.opts.ResultTTL
}

// GetOrLoad returns the cached value for key, consulting each tier in
// order and falling through to the loader on a full miss. A hit on a
// lower tier backfills the tiers above it. Concurrent calls for the
// same key share one loader invocation.
func (c *Cache) GetOrLoad(ctx context.Context, key, class string, load LoaderFunc) ([]byte, error) {
	// Fast path: the first tier is lock-cheap, skip the flight.
	if v, ok := c.tiers[0].get(ctx, key, class); ok {
		c.hit(c.tiers[0].name())
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-walk under the flight: another caller may have
		// populated a tier while we queued.
		for i, t := range c.tiers {
			value, ok := t.get(ctx, key, class)
			if !ok {
				continue
			}
			for _, upper := range c.tiers[:i] {
				upper.set(ctx, key, class, value)
			}
			c.hit(t.name())
			return value, nil
		}

		if c.opts.OnMiss != nil {
			c.opts.OnMiss()
		}
		value, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		for _, t := range c.tiers {
			t.set(ctx, key, class, value)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate removes one key from every tier.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	for _, t := range c.tiers {
		if err := t.remove(ctx, key); err != nil {
			return fmt.Errorf("invalidate %s: %w", key, err)
		}
	}
	return nil
}

// InvalidateClass removes every key of the class from every tier.
func (c *Cache) InvalidateClass(ctx context.Context, class string) error {
	for _, t := range c.tiers {
		if err := t.removeClass(ctx, class); err != nil {
			return fmt.Errorf("invalidate class %s: %w", class, err)
		}
	}
	return nil
}

func (c *Cache) hit(tier string) {
	if c.opts.OnHit != nil {
		c.opts.OnHit(tier)
	}
}

type memEntry struct {
	value     []byte
	class     string
	expiresAt time.Time
}

type memoryTier struct {
	ttl func(class string) time.Duration

	mu  sync.RWMutex
	mem map[string]memEntry
}

func newMemoryTier(ttl func(string) time.Duration) *memoryTier {
	return &memoryTier{ttl: ttl, mem: make(map[string]memEntry)}
}

func (m *memoryTier) name() string { return "memory" }

func (m *memoryTier) get(_ context.Context, key, _ string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.mem[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.mem[key]; ok && time.Now().After(cur.expiresAt) {
			delete(m.mem, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

func (m *memoryTier) set(_ context.Context, key, class string, value []byte) {
	m.mu.Lock()
	m.mem[key] = memEntry{
		value:     value,
		class:     class,
		expiresAt: time.Now().Add(m.ttl(class)),
	}
	m.mu.Unlock()
}

func (m *memoryTier) remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.mem, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryTier) removeClass(_ context.Context, class string) error {
	m.mu.Lock()
	for key, entry := range m.mem {
		if entry.class == class {
			delete(m.mem, key)
		}
	}
	m.mu.Unlock()
	return nil
}

type storeTier struct {
	store storage.CacheStore
	ttl   func(class string) time.Duration
}

func (s *storeTier) name() string { return "store" }

func (s *storeTier) get(ctx context.Context, key, class string) ([]byte, bool) {
	value, writtenAt, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		if time.Since(writtenAt) < s.ttl(class) {
			return value, true
		}
	case !errors.Is(err, storage.ErrNotFound):
		logger.Warn("cache store read failed for %s: %v", key, err)
	}
	return nil, false
}

func (s *storeTier) set(ctx context.Context, key, class string, value []byte) {
	if err := s.store.Set(ctx, key, class, value); err != nil {
		logger.Warn("cache store write failed for %s: %v", key, err)
	}
}

func (s *storeTier) remove(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

func (s *storeTier) removeClass(ctx context.Context, class string) error {
	return s.store.DeleteClass(ctx, class)
}
