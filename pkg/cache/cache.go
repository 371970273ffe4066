package cache

import (
	"sync"
	"time"

	"mcp-toolserver/pkg/logging"
)

// DefaultMaxBytes bounds the total size of cached content
const DefaultMaxBytes = 64 * 1024 * 1024

// Entry is a cached resource body
type Entry struct {
	Content  string
	LoadedAt time.Time
}

// ContentCache keeps rendered resource content keyed by source path.
// Entries are dropped when the file changes on disk.
type ContentCache struct {
	entries  map[string]Entry
	mutex    sync.RWMutex
	stats    CacheStats
	maxBytes int64
	logger   *logging.StructuredLogger
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	Invalidations int64     `json:"invalidations"`
	Evictions     int64     `json:"evictions"`
	MemoryUsage   int64     `json:"memoryUsage"`
	LastCleanup   time.Time `json:"lastCleanup"`
}

// NewContentCache creates a cache bounded by maxBytes. Zero selects DefaultMaxBytes.
func NewContentCache(maxBytes int64, logger *logging.StructuredLogger) *ContentCache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &ContentCache{
		entries:  make(map[string]Entry),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Get returns the cached entry for key
func (c *ContentCache) Get(key string) (Entry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return Entry{}, false
	}
	c.stats.Hits++
	return entry, true
}

// Set stores content under key, evicting older entries when over budget
func (c *ContentCache) Set(key, content string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if old, ok := c.entries[key]; ok {
		c.stats.MemoryUsage -= int64(len(old.Content))
	}
	c.entries[key] = Entry{Content: content, LoadedAt: time.Now()}
	c.stats.MemoryUsage += int64(len(content))

	if c.stats.MemoryUsage > c.maxBytes {
		c.evictOldest(key)
	}
}

// evictOldest drops the oldest entries other than keep until the cache is
// back under budget. Must be called with the lock held.
func (c *ContentCache) evictOldest(keep string) {
	removed := 0
	for c.stats.MemoryUsage > c.maxBytes {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.entries {
			if k == keep {
				continue
			}
			if oldestKey == "" || e.LoadedAt.Before(oldest) {
				oldestKey, oldest = k, e.LoadedAt
			}
		}
		if oldestKey == "" {
			break
		}
		c.stats.MemoryUsage -= int64(len(c.entries[oldestKey].Content))
		delete(c.entries, oldestKey)
		removed++
	}

	c.stats.Evictions += int64(removed)
	c.stats.LastCleanup = time.Now()
	if c.logger != nil && removed > 0 {
		c.logger.WithContext("entries_removed", removed).
			WithContext("memory_usage_bytes", c.stats.MemoryUsage).
			Debug("Cache eviction performed")
	}
}

// Invalidate removes key from the cache. It reports whether an entry existed.
func (c *ContentCache) Invalidate(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.stats.MemoryUsage -= int64(len(entry.Content))
	c.stats.Invalidations++
	return true
}

// Clear removes every entry
func (c *ContentCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]Entry)
	c.stats.MemoryUsage = 0
	c.stats.LastCleanup = time.Now()
}

// Size returns the number of cached entries
func (c *ContentCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// GetStats returns cache performance statistics
func (c *ContentCache) GetStats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.stats
}

// HitRatio returns the cache hit ratio as a percentage
func (c *ContentCache) HitRatio() float64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	total := c.stats.Hits + c.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(c.stats.Hits) / float64(total) * 100
}
