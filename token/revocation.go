package token

import (
	"sync"
	"time"
)

// RevokedTokenCache tracks revoked access tokens by jti until they would have expired anyway.
type RevokedTokenCache interface {
	Add(jti string, exp time.Time) error
	IsRevoked(jti string) bool
	// Cleanup drops entries past their expiry and reports how many were removed.
	Cleanup() int
}

// InMemoryRevokedTokenCache reads time from the issuer's clock, so a revoked token stops
// being tracked at the same instant Verify starts rejecting it as expired.
type InMemoryRevokedTokenCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
	nowFunc func() time.Time
}

var _ RevokedTokenCache = (*InMemoryRevokedTokenCache)(nil)

// NewInMemoryRevokedTokenCache uses now as its clock; nil means time.Now.
func NewInMemoryRevokedTokenCache(now func() time.Time) *InMemoryRevokedTokenCache {
	if now == nil {
		now = time.Now
	}
	return &InMemoryRevokedTokenCache{
		revoked: make(map[string]time.Time),
		nowFunc: now,
	}
}

func (c *InMemoryRevokedTokenCache) Add(jti string, exp time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(jti string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exp, exists := c.revoked[jti]
	return exists && !c.nowFunc().After(exp)
}

func (c *InMemoryRevokedTokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.revoked)
}

func (c *InMemoryRevokedTokenCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	removed := 0
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
			removed++
		}
	}
	return removed
}
