package gauth

import (
	"sync"
	"time"
)

// RefreshMargin is how long before expiry a cached token stops being served.
const RefreshMargin = 10 * time.Minute

// TokenCache holds one bearer token for the lifetime of the process. It is
// safe for concurrent use; concurrent refreshes resolve last-writer-wins.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewTokenCache creates an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// Get returns the cached token if it is still valid at now plus RefreshMargin.
func (c *TokenCache) Get(now time.Time) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || !now.Add(RefreshMargin).Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set stores a token and its absolute expiry.
func (c *TokenCache) Set(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
}

// ExpiresAt returns the stored expiry, zero when empty.
func (c *TokenCache) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

// Invalidate drops the cached token.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
