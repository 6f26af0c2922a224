// Package cache provides a memory tier in front of result payload storage.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/devlens/devlens/internal/storage"
)

// maxEntries bounds the entry count independently of the byte budget.
const maxEntries = 4096

// Metrics holds cache statistics for observability.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
	SizeBytes atomic.Int64
}

// CachedStorage is a read-through cache over an ObjectStorage. Payloads are
// immutable once written, so Put and Delete only need to drop the cached copy.
type CachedStorage struct {
	inner    storage.ObjectStorage
	maxBytes int64

	mu      sync.Mutex
	entries *lru.Cache[string, []byte]
	group   singleflight.Group
	metrics Metrics
}

// NewCachedStorage wraps inner with a cache holding at most maxBytes of
// payload data.
func NewCachedStorage(inner storage.ObjectStorage, maxBytes int64) (*CachedStorage, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("maxBytes must be positive, got %d", maxBytes)
	}

	c := &CachedStorage{inner: inner, maxBytes: maxBytes}
	entries, err := lru.NewWithEvict[string, []byte](maxEntries, func(_ string, data []byte) {
		c.metrics.SizeBytes.Add(-int64(len(data)))
		c.metrics.Evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// Put writes through and invalidates any cached copy.
func (c *CachedStorage) Put(ctx context.Context, objectPath string, data []byte) (string, error) {
	etag, err := c.inner.Put(ctx, objectPath, data)
	c.invalidate(objectPath)
	return etag, err
}

// Get serves from memory when possible. Concurrent misses for the same key
// share one backend read.
func (c *CachedStorage) Get(ctx context.Context, objectPath string) ([]byte, error) {
	c.mu.Lock()
	data, ok := c.entries.Get(objectPath)
	c.mu.Unlock()
	if ok {
		c.metrics.Hits.Add(1)
		return data, nil
	}
	c.metrics.Misses.Add(1)

	v, err, _ := c.group.Do(objectPath, func() (interface{}, error) {
		data, err := c.inner.Get(ctx, objectPath)
		if err != nil {
			return nil, err
		}
		c.add(objectPath, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Delete removes the object and its cached copy.
func (c *CachedStorage) Delete(ctx context.Context, objectPath string) error {
	c.invalidate(objectPath)
	return c.inner.Delete(ctx, objectPath)
}

// Exists checks the cache before asking the backend.
func (c *CachedStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	c.mu.Lock()
	ok := c.entries.Contains(objectPath)
	c.mu.Unlock()
	if ok {
		return true, nil
	}
	return c.inner.Exists(ctx, objectPath)
}

// ListObjects always asks the backend.
func (c *CachedStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	return c.inner.ListObjects(ctx, prefix)
}

// Stats returns current cache counters.
func (c *CachedStorage) Stats() (hits, misses, evictions, sizeBytes int64) {
	return c.metrics.Hits.Load(), c.metrics.Misses.Load(), c.metrics.Evictions.Load(), c.metrics.SizeBytes.Load()
}

// HitRate returns the cache hit rate as a percentage.
func (c *CachedStorage) HitRate() float64 {
	hits := c.metrics.Hits.Load()
	total := hits + c.metrics.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Len returns the number of cached payloads.
func (c *CachedStorage) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *CachedStorage) add(objectPath string, data []byte) {
	size := int64(len(data))
	if size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries.Peek(objectPath); ok {
		c.metrics.SizeBytes.Add(-int64(len(old)))
	}
	c.entries.Add(objectPath, data)
	c.metrics.SizeBytes.Add(size)
	for c.metrics.SizeBytes.Load() > c.maxBytes {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
	}
}

func (c *CachedStorage) invalidate(objectPath string) {
	c.mu.Lock()
	if c.entries.Remove(objectPath) {
		// Remove fires the eviction callback; an invalidation is not an eviction.
		c.metrics.Evictions.Add(-1)
	}
	c.mu.Unlock()
}
