package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/datagraph/pkg/cache"
)

// CacheStats is the part of a cache the collector reads
type CacheStats interface {
	Metrics() *cache.Metrics
	Len() int
}

// Collector collects and aggregates metrics for the application.
type Collector struct {
	// API metrics, keyed by GraphQL operation, HTTP route or gRPC method
	apiRequests sync.Map // map[string]*uint64
	apiErrors   sync.Map // map[string]*uint64
	apiDuration sync.Map // map[string]*durationValue - total duration in seconds

	// Authorization decision cache (optional)
	cache CacheStats
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	Evictions   uint64
	Expirations uint64
}

// APIMetrics holds API request metrics.
type APIMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache whose statistics are reported.
func (c *Collector) SetCache(cache CacheStats) {
	c.cache = cache
}

// RecordRequest records an API request.
func (c *Collector) RecordRequest(name string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.apiRequests, name), 1)
}

// RecordError records an API error.
func (c *Collector) RecordError(name string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.apiErrors, name), 1)
}

// RecordDuration records the duration of an API call in seconds.
func (c *Collector) RecordDuration(name string, durationSeconds float64) {
	val, _ := c.apiDuration.LoadOrStore(name, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	m := c.cache.Metrics()
	if m == nil {
		return &CacheMetrics{}
	}

	return &CacheMetrics{
		Hits:        m.Hits,
		Misses:      m.Misses,
		HitRate:     m.HitRate(),
		KeysCurrent: int64(c.cache.Len()),
		Evictions:   m.KeysEvicted,
		Expirations: m.KeysExpired,
	}
}

// GetAPIMetrics returns current API metrics.
func (c *Collector) GetAPIMetrics() *APIMetrics {
	result := &APIMetrics{
		RequestCounts:        make(map[string]uint64),
		ErrorCounts:          make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.apiRequests.Range(func(key, value any) bool {
		result.RequestCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	c.apiErrors.Range(func(key, value any) bool {
		result.ErrorCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	c.apiDuration.Range(func(key, value any) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
