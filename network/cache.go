package network

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultMaxAge applies to cached responses that carry no freshness
// information.
const DefaultMaxAge = 5 * time.Minute

// CacheEntry is a cached response with its freshness data.
type CacheEntry struct {
	Response  *Response
	MaxAge    time.Duration
	HasMaxAge bool
	Expires   time.Time
	CachedAt  time.Time
}

// IsExpired reports whether the entry is stale.
func (e *CacheEntry) IsExpired() bool {
	if e.HasMaxAge {
		return time.Since(e.CachedAt) > e.MaxAge
	}
	if !e.Expires.IsZero() {
		return time.Now().After(e.Expires)
	}
	return time.Since(e.CachedAt) > DefaultMaxAge
}

// Cache is an in-memory response cache keyed by URL.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	maxSize int
}

// NewCache creates a cache holding at most maxSize entries.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &Cache{
		entries: make(map[string]*CacheEntry),
		maxSize: maxSize,
	}
}

// Get returns the fresh entry for url.
func (c *Cache) Get(url string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[url]
	if !ok || entry.IsExpired() {
		return nil, false
	}
	return entry, true
}

// Set stores resp under url unless its headers forbid it.
func (c *Cache) Set(url string, resp *Response) {
	entry := &CacheEntry{Response: resp, CachedAt: time.Now()}
	directives := parseCacheControl(resp.Headers.Get("Cache-Control"))
	if _, ok := directives["no-store"]; ok {
		return
	}
	if v, ok := directives["max-age"]; ok {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			entry.MaxAge = time.Duration(seconds) * time.Second
			entry.HasMaxAge = true
		}
	}
	if !entry.HasMaxAge {
		if t, err := http.ParseTime(resp.Headers.Get("Expires")); err == nil {
			entry.Expires = t
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[url]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[url] = entry
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Size returns the number of entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest must be called with c.mu held.
func (c *Cache) evictOldest() {
	var oldest string
	var oldestAt time.Time
	for url, entry := range c.entries {
		if oldest == "" || entry.CachedAt.Before(oldestAt) {
			oldest, oldestAt = url, entry.CachedAt
		}
	}
	delete(c.entries, oldest)
}

// parseCacheControl splits a Cache-Control header into lower-cased
// directive names and their values.
func parseCacheControl(value string) map[string]string {
	directives := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		name, arg, _ := strings.Cut(strings.TrimSpace(part), "=")
		if name == "" {
			continue
		}
		directives[strings.ToLower(name)] = strings.Trim(arg, `"`)
	}
	return directives
}
