// Package store holds the in-process station-catalog cache. Discovery
// listings are slow provider round trips; the catalog lets repeated
// region queries and the warm-up scheduler share them.
package store

import (
	"sync"
	"time"
)

type entry[T any] struct {
	items   []T
	fetched time.Time
}

// Catalog is a concurrency-safe TTL cache of listings, keyed by an
// adapter-specific listing key (network + bounds + sensor codes).
type Catalog[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	ttl     time.Duration
	now     func() time.Time
}

// NewCatalog creates a catalog. ttl <= 0 means entries never expire.
func NewCatalog[T any](ttl time.Duration) *Catalog[T] {
	return &Catalog[T]{
		entries: map[string]entry[T]{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a fresh cached listing, if any.
func (c *Catalog[T]) Get(key string) ([]T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.fetched) > c.ttl {
		return nil, false
	}
	return append([]T(nil), e.items...), true
}

// Put stores a listing, replacing any previous entry for the key.
func (c *Catalog[T]) Put(key string, items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{
		items:   append([]T(nil), items...),
		fetched: c.now(),
	}
}

// Purge drops expired entries and reports how many remain.
func (c *Catalog[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl > 0 {
		cutoff := c.now().Add(-c.ttl)
		for key, e := range c.entries {
			if e.fetched.Before(cutoff) {
				delete(c.entries, key)
			}
		}
	}
	return len(c.entries)
}

// Keys lists the cached listing keys.
func (c *Catalog[T]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for key := range c.entries {
		out = append(out, key)
	}
	return out
}
