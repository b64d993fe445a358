package credentials

import (
	"net/url"
	"sync"
)

// TokenCache is the daemon-tier credential cache the disconnect coordinator
// evicts from. It is a best-effort performance cache keyed by service origin,
// never a source of truth: losing an entry is always safe, staleness is the
// failure mode being guarded against.
type TokenCache interface {

	// Evict drops the cached entry for an origin, if any.
	Evict(origin string)
}

// OriginCache is a mutex-guarded origin -> token cache owned by the daemon
// process. No other component mutates it directly.
type OriginCache struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewOriginCache creates an empty origin cache.
func NewOriginCache() *OriginCache {
	return &OriginCache{
		entries: make(map[string]string),
	}
}

var _ TokenCache = (*OriginCache)(nil)

// Put stores a token for an origin, replacing any previous entry.
func (c *OriginCache) Put(origin, token string) {
	c.mu.Lock()
	c.entries[origin] = token
	c.mu.Unlock()
}

// Get returns the cached token for an origin.
func (c *OriginCache) Get(origin string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, ok := c.entries[origin]
	return token, ok
}

// Evict drops the cached entry for an origin, if any.
func (c *OriginCache) Evict(origin string) {
	c.mu.Lock()
	delete(c.entries, origin)
	c.mu.Unlock()
}

// Clear drops every cached entry. The core-library cache tier is cleared
// through this: it has no per-server key, so eviction there is always global.
func (c *OriginCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]string)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *OriginCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// deriveOrigin returns the scheme+host cache key for a server url, or "" if
// the url cannot be parsed into one. A malformed url is not an error here:
// callers simply skip the cache eviction it would have keyed.
func deriveOrigin(raw string) string {

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	return u.Scheme + "://" + u.Host
}
