// Package respcache caches fetched HTTP responses for the duration of
// a TTL so identical queries within one cycle hit the network once.
package respcache

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL bounds how long a cached response may be served.
const DefaultTTL = 10 * time.Minute

// Entry is one cached response.
type Entry struct {
	Body      string
	Status    int
	Headers   map[string]string
	CreatedAt time.Time
}

// Cache is a concurrent TTL-keyed response cache. Entries expire by
// TTL only; there is no size-bounded eviction. Growth is accepted and
// cleared by TTL or operator action.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]Entry
	now     func() time.Time
}

// New creates a cache with the given TTL; ttl <= 0 selects DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Key canonicalizes a request into a cache key: URL plus
// alphabetically sorted query parameters.
func Key(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(rawURL)
	sb.WriteByte('?')
	for i, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for j, v := range values {
			if i+j > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

// Get returns the entry for key if present and fresh. Expired entries
// are removed on read.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}

	if c.now().Sub(entry.CreatedAt) > c.ttl {
		c.Delete(key)
		return Entry{}, false
	}
	return entry, true
}

// Set stores a response under key.
func (c *Cache) Set(key string, entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now()
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Delete removes a single entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// PurgeMatching removes every entry whose body contains any of the
// given substrings, case-insensitively, and returns the number of
// entries removed. It is used to evict cached anti-bot challenge pages
// so a retry is not served the blocked response again.
func (c *Cache) PurgeMatching(substrings []string) int {
	normalized := make([]string, 0, len(substrings))
	for _, s := range substrings {
		if trimmed := strings.ToLower(strings.TrimSpace(s)); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	if len(normalized) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	purged := 0
	for key, entry := range c.entries {
		body := strings.ToLower(entry.Body)
		for _, token := range normalized {
			if strings.Contains(body, token) {
				delete(c.entries, key)
				purged++
				break
			}
		}
	}
	return purged
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
