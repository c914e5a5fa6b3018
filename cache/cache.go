// Package cache wraps an LRU with per-entry expiry. Expired entries are
// reported as misses and evicted lazily by the LRU itself.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type Cache[V any] struct {
	lru *lru.Cache[string, *entry[V]]
	now func() time.Time
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithClock replaces the wall clock, used by tests to freeze expiry.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

func New[V any](size int, opts ...Option[V]) (*Cache[V], error) {
	l, err := lru.New[string, *entry[V]](size)
	if err != nil {
		return nil, err
	}
	c := &Cache[V]{lru: l, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cache[V]) Get(key string) (V, bool) {
	e, ok := c.lru.Get(key)
	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Set(key string, val V, ttl time.Duration) {
	c.lru.Add(key, &entry[V]{
		value:     val,
		expiresAt: c.now().Add(ttl),
	})
}
