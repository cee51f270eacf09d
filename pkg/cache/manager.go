package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager handles caching operations with a Redis backend and an optional
// in-process memory tier in front of it.
type Manager struct {
	redis  *redis.Client
	memory *theine.Cache[string, *CacheEntry]
}

// Option configures a Manager.
type Option func(*Manager) error

// WithMemoryTier keeps up to maxEntries decoded entries in process memory.
// Lookups hit the memory tier before Redis.
func WithMemoryTier(maxEntries int64) Option {
	return func(m *Manager) error {
		if maxEntries <= 0 {
			return fmt.Errorf("memory tier size must be > 0 (got %d)", maxEntries)
		}
		memory, err := theine.NewBuilder[string, *CacheEntry](maxEntries).Build()
		if err != nil {
			return fmt.Errorf("build memory tier: %w", err)
		}
		m.memory = memory
		return nil
	}
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client, opts ...Option) (*Manager, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	m := &Manager{
		redis: redisClient,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist. An expired entry is still
// returned while it carries validators, so the caller can revalidate it.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	if m.memory != nil {
		if entry, ok := m.memory.Get(cacheKey); ok {
			CacheHits.WithLabelValues("memory").Inc()
			return entry, nil
		}
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Stale entries are only worth keeping when they can be revalidated.
	if entry.IsExpired() && !ShouldMakeConditionalRequest(&entry) {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.remember(cacheKey, &entry)

	return &entry, nil
}

// Set stores a cache entry. Redis drops it once it is expired and, for
// entries with an ETag or Last-Modified, the RevalidateWindow has passed.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	cacheKey := key.String()

	ttl := entry.storeTTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))
	m.remember(cacheKey, entry)

	return nil
}

// Delete removes a cache entry from both tiers.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	cacheKey := key.String()

	if m.memory != nil {
		m.memory.Delete(cacheKey)
	}

	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// UpdateTTL updates the TTL of an existing cache entry.
// This is used when a 304 Not Modified response carries new freshness headers.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	updated := *entry
	updated.Expires = newExpires

	return m.Set(ctx, key, &updated)
}

// Close releases the memory tier. The Redis client is owned by the caller.
func (m *Manager) Close() {
	if m.memory != nil {
		m.memory.Close()
	}
}

func (m *Manager) remember(key string, entry *CacheEntry) {
	if m.memory == nil {
		return
	}
	if ttl := entry.storeTTL(); ttl > 0 {
		m.memory.SetWithTTL(key, entry, 1, ttl)
	}
}
