// internal/assets/cache.go
//
// Shared, bounded cache of decoded assets.
//
// Context
// -------
// Thousands of labels reuse one background and a handful of icons.  Cache
// lazily loads each URL once, stores the decoded image in an LRU, and uses
// singleflight so a burst of builds asking for the same icon triggers one
// fetch.  Failures are not cached; the next request retries.
package assets

import (
	"context"
	"image"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/yanizio/labelsprite/internal/cache"
	"github.com/yanizio/labelsprite/internal/metrics"
)

// DefaultCacheEntries bounds the decoded-asset LRU.
const DefaultCacheEntries = 256

// Cache wraps a Loader.  Safe for concurrent use.
type Cache struct {
	next Loader
	sfg  singleflight.Group

	mu  sync.Mutex
	lru *cache.LRU[string, image.Image]
}

// NewCache returns a Cache in front of next holding up to entries images.
func NewCache(next Loader, entries int) *Cache {
	if entries < 1 {
		entries = DefaultCacheEntries
	}
	return &Cache{next: next, lru: cache.New[string, image.Image](entries)}
}

// Load implements Loader.
func (c *Cache) Load(ctx context.Context, rawURL string) (image.Image, error) {
	if img, ok := c.get(rawURL); ok {
		metrics.AssetLoadTotal.WithLabelValues("hit").Inc()
		return img, nil
	}

	v, err, _ := c.sfg.Do(rawURL, func() (interface{}, error) {
		// Double-check after singleflight barrier.
		if img, ok := c.get(rawURL); ok {
			return img, nil
		}
		img, err := c.next.Load(ctx, rawURL)
		if err != nil {
			metrics.AssetLoadTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		c.mu.Lock()
		c.lru.Add(rawURL, img)
		c.mu.Unlock()
		metrics.AssetLoadTotal.WithLabelValues("loaded").Inc()
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// Purge drops every cached asset.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

// Len reports how many assets are cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) get(rawURL string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(rawURL)
}
