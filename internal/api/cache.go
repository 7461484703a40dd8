package api

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"hostmon/internal/metrics"
)

const latestKey = "latest"

// LiveCache keeps the most recent snapshot for the current endpoint.
// Params: ttl bounds how long a snapshot is served after the loop stops writing.
// Returns: sink that also answers Latest.
type LiveCache struct {
	cache *ttlcache.Cache[string, *metrics.Snapshot]
}

// NewLiveCache creates an empty cache.
// Params: ttl snapshot lifetime.
// Returns: cache instance.
func NewLiveCache(ttl time.Duration) *LiveCache {
	return &LiveCache{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *metrics.Snapshot](ttl),
			ttlcache.WithDisableTouchOnHit[string, *metrics.Snapshot](),
		),
	}
}

// Write stores snap as the latest snapshot.
// Params: ctx unused; snap collected snapshot.
// Returns: always nil.
func (c *LiveCache) Write(_ context.Context, snap *metrics.Snapshot) error {
	if snap == nil {
		return nil
	}
	c.cache.Set(latestKey, snap, ttlcache.DefaultTTL)
	return nil
}

// Latest returns the cached snapshot unless it expired.
// Params: none.
// Returns: snapshot and presence flag.
func (c *LiveCache) Latest() (*metrics.Snapshot, bool) {
	item := c.cache.Get(latestKey)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

// Close drops the cached snapshot.
// Params: none.
// Returns: always nil.
func (c *LiveCache) Close() error {
	c.cache.DeleteAll()
	return nil
}
