// Package memorycache is an in-process LRU cache with per-entry TTL.
package memorycache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asakaida/datagraph/pkg/cache"
)

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Cache implements cache.Cache with least-recently-used eviction once MaxEntries is
// reached. Expired entries are dropped lazily on access.
type Cache[V any] struct {
	mu sync.Mutex

	items     map[string]*list.Element
	evictList *list.List // front = most recently used

	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	hits        atomic.Uint64
	misses      atomic.Uint64
	keysAdded   atomic.Uint64
	keysEvicted atomic.Uint64
	keysExpired atomic.Uint64
}

var _ cache.Cache[bool] = (*Cache[bool])(nil)

// Config holds configuration for the memory cache.
type Config struct {
	// MaxEntries bounds the number of cached keys (0 = unbounded).
	MaxEntries int

	// DefaultTTL applies when Set is called without a positive ttl.
	DefaultTTL time.Duration
}

// DefaultConfig returns a cache of 10000 entries living one minute
func DefaultConfig() *Config {
	return &Config{MaxEntries: 10000, DefaultTTL: time.Minute}
}

// New creates a new memory cache with the given configuration.
func New[V any](config *Config) *Cache[V] {
	if config == nil {
		config = DefaultConfig()
	}
	return &Cache[V]{
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		maxEntries: config.MaxEntries,
		ttl:        config.DefaultTTL,
		now:        time.Now,
	}
}

// Get retrieves a value from cache and marks it recently used.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	ent := elem.Value.(*entry[V])
	if c.now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.keysExpired.Add(1)
		c.misses.Add(1)
		return zero, false
	}

	c.evictList.MoveToFront(elem)
	c.hits.Add(1)
	return ent.value, true
}

// Set stores a value in cache with the specified TTL.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.evictList.MoveToFront(elem)
		return nil
	}

	c.items[key] = c.evictList.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	c.keysAdded.Add(1)

	for c.maxEntries > 0 && c.evictList.Len() > c.maxEntries {
		c.removeElement(c.evictList.Back())
		c.keysEvicted.Add(1)
	}
	return nil
}

// Delete removes a value from cache.
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Clear removes all entries from cache.
func (c *Cache[V]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	return nil
}

// Close releases resources (no-op for memory cache).
func (c *Cache[V]) Close() error {
	return nil
}

// Metrics returns cache statistics.
func (c *Cache[V]) Metrics() *cache.Metrics {
	return &cache.Metrics{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		KeysAdded:   c.keysAdded.Load(),
		KeysEvicted: c.keysEvicted.Load(),
		KeysExpired: c.keysExpired.Load(),
	}
}

// Len returns the current number of items in cache, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// removeElement must be called with the lock held
func (c *Cache[V]) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	delete(c.items, elem.Value.(*entry[V]).key)
}
