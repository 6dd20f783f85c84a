// Package cache holds recently downloaded init fragments in memory so that
// the time-shift buffer can serve them without a store read.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// InitFragmentCache is a TTL bound in-memory cache of init fragments keyed
// by their request URL.
type InitFragmentCache struct {
	items *gocache.Cache
}

type entry struct {
	data         []byte
	effectiveURL string
}

// NewInitFragmentCache creates a cache whose entries expire after ttl and
// are purged every cleanupInterval. A zero ttl keeps entries until removed.
func NewInitFragmentCache(ttl, cleanupInterval time.Duration) *InitFragmentCache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &InitFragmentCache{items: gocache.New(ttl, cleanupInterval)}
}

// Store caches a copy of data for url. effectiveURL is the URL the fragment
// was finally fetched from after redirects; it defaults to url.
func (c *InitFragmentCache) Store(url, effectiveURL string, data []byte) {
	if url == "" || len(data) == 0 {
		return
	}
	if effectiveURL == "" {
		effectiveURL = url
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.items.SetDefault(url, entry{data: buf, effectiveURL: effectiveURL})
}

// Retrieve returns a copy of the cached fragment for url.
func (c *InitFragmentCache) Retrieve(url string) (data []byte, effectiveURL string, ok bool) {
	v, found := c.items.Get(url)
	if !found {
		return nil, "", false
	}
	e, _ := v.(entry)
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, e.effectiveURL, true
}

// Remove drops url from the cache.
func (c *InitFragmentCache) Remove(url string) {
	c.items.Delete(url)
}

// Count returns the number of cached fragments, including expired ones not
// yet purged.
func (c *InitFragmentCache) Count() int {
	return c.items.ItemCount()
}

// Flush drops every cached fragment.
func (c *InitFragmentCache) Flush() {
	c.items.Flush()
}
