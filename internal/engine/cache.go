package engine

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PermissionCache caches a user's resolved hierarchical grant set.
// A miss always falls through to the authoritative store; the cache is
// never consulted for deny assignments, so a stale entry can widen
// latency but never a decision past a deny.
type PermissionCache interface {
	Get(userID int64) ([]Grant, bool)
	Set(userID int64, grants []Grant)
	Invalidate(userID int64)
	Purge()
}

// LRUCache bounds the resolved-grant cache by entry count and TTL.
type LRUCache struct {
	lru *expirable.LRU[int64, []Grant]
}

// NewLRUCache builds a cache holding at most size entries for at most ttl.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{lru: expirable.NewLRU[int64, []Grant](size, nil, ttl)}
}

func (c *LRUCache) Get(userID int64) ([]Grant, bool) {
	return c.lru.Get(userID)
}

func (c *LRUCache) Set(userID int64, grants []Grant) {
	c.lru.Add(userID, grants)
}

func (c *LRUCache) Invalidate(userID int64) {
	c.lru.Remove(userID)
}

func (c *LRUCache) Purge() {
	c.lru.Purge()
}

// noopCache disables caching; used when no cache is injected.
type noopCache struct{}

func (noopCache) Get(int64) ([]Grant, bool) { return nil, false }
func (noopCache) Set(int64, []Grant)        {}
func (noopCache) Invalidate(int64)          {}
func (noopCache) Purge()                    {}
