package nav

import (
	"context"
	"sync"
	"time"

	"github.com/yegors/flightseg/pkg/logger"
)

type cacheEntry struct {
	track     Track
	expiresAt time.Time
}

// CachedSource keeps fetched tracks for a fixed time. Failed fetches are not
// cached.
type CachedSource struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCachedSource wraps source with a cache expiring entries after ttl
func NewCachedSource(source Source, ttl time.Duration, log *logger.Logger) *CachedSource {
	return &CachedSource{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		logger:  log.Named("track-cache"),
		entries: make(map[string]cacheEntry),
	}
}

// Track implements Source. The returned track is shared with the cache and
// must not be modified.
func (c *CachedSource) Track(ctx context.Context, platform, flightID string) (Track, error) {
	key := platform + "/" + flightID

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		c.logger.Debug("Track cache hit", logger.String("flight_id", flightID))
		return entry.track, nil
	}

	track, err := c.source.Track(ctx, platform, flightID)
	if err != nil {
		return nil, err
	}

	expiresAt := c.now().Add(c.ttl)
	c.mu.Lock()
	c.entries[key] = cacheEntry{track: track, expiresAt: expiresAt}
	c.mu.Unlock()

	c.logger.Debug("Track cached",
		logger.String("platform", platform),
		logger.String("flight_id", flightID),
		logger.Int("samples", len(track)),
		logger.Time("expires_at", expiresAt))
	return track, nil
}

// Purge drops expired entries and returns how many were removed
func (c *CachedSource) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
