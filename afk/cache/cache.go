// Package cache keeps AFK statuses in an otter TTL cache in front of the store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter"

	"github.com/m3rciful/afkbot/afk/status"
	"github.com/m3rciful/afkbot/afk/storage"
)

const (
	DefaultCapacity = 10000
	DefaultTTL      = 5 * time.Minute
)

// Loader reads a status from the backing store.
type Loader interface {
	Get(ctx context.Context, key status.Key) (status.Status, error)
}

// Stats are cumulative lookup counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// HitRatio returns hits over all lookups, or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a read-through cache of statuses. Unknown users are cached as
// present placeholders so chatty groups do not query the store per message.
type Cache struct {
	entries otter.Cache[status.Key, status.Status]
	loader  Loader

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New builds a cache with the given capacity and TTL; zero values use the defaults.
func New(loader Loader, capacity int, ttl time.Duration) (*Cache, error) {
	if loader == nil {
		return nil, errors.New("cache: nil loader")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c, err := otter.MustBuilder[status.Key, status.Status](capacity).WithTTL(ttl).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create status cache with capacity %d: %w", capacity, err)
	}
	return &Cache{entries: c, loader: loader}, nil
}

// Get returns the cached status for key, loading it on a miss.
// A key the store does not know yields a non-away status and no error.
func (c *Cache) Get(ctx context.Context, key status.Key) (status.Status, error) {
	if st, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return st, nil
	}
	c.misses.Add(1)

	st, err := c.loader.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		st = status.Status{Key: key}
	case err != nil:
		return status.Status{}, err
	}
	// A Put that landed while the store was read holds the newer value.
	if !c.entries.SetIfAbsent(key, st) {
		if cur, ok := c.entries.Get(key); ok {
			return cur, nil
		}
	}
	return st, nil
}

// Put stores st after a successful write to the store.
func (c *Cache) Put(st status.Status) {
	c.entries.Set(st.Key, st)
}

// Invalidate drops the given keys.
func (c *Cache) Invalidate(keys ...status.Key) {
	for _, k := range keys {
		c.entries.Delete(k)
	}
}

// Stats returns the lookup counters and the current entry count.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.entries.Size(),
	}
}

// Close stops the cache's background maintenance.
func (c *Cache) Close() {
	c.entries.Close()
}
