// Package streamcache caches resolved stream URLs per (track, quality) pair
// with TTL and signed-URL expiry, failure-based eviction, an LRU capacity
// bound, and debounced persistence to a durable store.
package streamcache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/llehouerou/hifi/internal/quality"
)

const (
	// DefaultCapacity bounds the in-memory entry count.
	DefaultCapacity = 600
	// DefaultTTL is the hard freshness ceiling since last validation.
	DefaultTTL = 6 * time.Hour
	// DefaultSafetyMargin guards against serving a URL that is about to
	// be rejected by the origin.
	DefaultSafetyMargin = time.Minute
	// DefaultFailureWindow is the sliding window for consecutive failures.
	DefaultFailureWindow = 30 * time.Second
	// DefaultFailureThreshold evicts an entry once reached within the window.
	DefaultFailureThreshold = 3

	persistDebounce = time.Second
)

// Options tunes cache behavior. Zero values take the package defaults.
type Options struct {
	Capacity         int
	TTL              time.Duration
	SafetyMargin     time.Duration
	FailureWindow    time.Duration
	FailureThreshold int
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.SafetyMargin <= 0 {
		o.SafetyMargin = DefaultSafetyMargin
	}
	if o.FailureWindow <= 0 {
		o.FailureWindow = DefaultFailureWindow
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Stats holds hit/miss counters for diagnostics.
type Stats struct {
	Hits   int64
	Misses int64
}

// Cache is the stream URL cache.
type Cache struct {
	mu   sync.Mutex
	lru  *lru.Cache[string, *Entry]
	opts Options

	stats Stats

	primary  Store
	fallback Store

	hydrated   bool
	saveTimer  *time.Timer
	saveDirty  bool
	closedOnce sync.Once
}

// New creates a cache backed by the given stores. Either store may be nil;
// persistence is best-effort.
func New(opts Options, primary, fallback Store) *Cache {
	opts = opts.withDefaults()
	backing, _ := lru.New[string, *Entry](opts.Capacity)
	return &Cache{
		lru:      backing,
		opts:     opts,
		primary:  primary,
		fallback: fallback,
	}
}

// ValidatedParams is the input to SetValidated.
type ValidatedParams struct {
	TrackID    int64
	Tier       quality.Tier
	URL        string
	ReplayGain *float64
	SampleRate *int
	BitDepth   *int
}

// Get returns the non-expired entry for the pair, bumping LastUsedAt, or
// nil on miss.
func (c *Cache) Get(trackID int64, tier quality.Tier) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked()

	key := Key(trackID, tier)
	entry, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return nil
	}
	if c.expiredLocked(entry) {
		c.lru.Remove(key)
		c.stats.Misses++
		c.scheduleSaveLocked()
		return nil
	}

	entry.LastUsedAt = c.opts.Now()
	c.stats.Hits++
	c.scheduleSaveLocked()

	copied := *entry
	return &copied
}

// SetValidated inserts or overwrites an entry that is known to have played,
// resetting its failure count and parsing an expiry out of the URL.
func (c *Cache) SetValidated(params ValidatedParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked()

	now := c.opts.Now()
	entry := &Entry{
		TrackID:     params.TrackID,
		Tier:        params.Tier,
		URL:         params.URL,
		ReplayGain:  params.ReplayGain,
		SampleRate:  params.SampleRate,
		BitDepth:    params.BitDepth,
		FetchedAt:   now,
		ValidatedAt: now,
		LastUsedAt:  now,
		ExpiresAt:   parseURLExpiry(params.URL),
	}
	if evicted := c.lru.Add(Key(params.TrackID, params.Tier), entry); evicted {
		log.Debug().Int64("track", params.TrackID).Msg("stream cache evicted LRU entry")
	}
	c.scheduleSaveLocked()
}

// RecordFailure notes a failed playback of the cached URL. Failures within
// the sliding window accumulate; reaching the threshold evicts the entry so
// a broken URL is not served repeatedly. A failure outside the window
// restarts the count at 1.
func (c *Cache) RecordFailure(trackID int64, tier quality.Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked()

	key := Key(trackID, tier)
	entry, ok := c.lru.Peek(key)
	if !ok {
		return
	}

	now := c.opts.Now()
	if !entry.LastFailureAt.IsZero() && now.Sub(entry.LastFailureAt) <= c.opts.FailureWindow {
		entry.FailureCount++
	} else {
		entry.FailureCount = 1
	}
	entry.LastFailureAt = now

	if entry.FailureCount >= c.opts.FailureThreshold {
		c.lru.Remove(key)
		log.Debug().
			Int64("track", trackID).
			Stringer("tier", tier).
			Int("failures", entry.FailureCount).
			Msg("stream cache entry evicted after repeated failures")
	}
	c.scheduleSaveLocked()
}

// Invalidate removes the entry for the pair.
func (c *Cache) Invalidate(trackID int64, tier quality.Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked()
	c.lru.Remove(Key(trackID, tier))
	c.scheduleSaveLocked()
}

// InvalidateTrack removes all entries for a track across every tier.
func (c *Cache) InvalidateTrack(trackID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked()
	for _, tier := range []quality.Tier{quality.Low, quality.High, quality.Lossless, quality.HiResLossless} {
		c.lru.Remove(Key(trackID, tier))
	}
	c.scheduleSaveLocked()
}

// Stats returns hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked()
	return c.lru.Len()
}

// Close flushes any pending persistence write.
func (c *Cache) Close() {
	c.closedOnce.Do(func() {
		c.mu.Lock()
		if c.saveTimer != nil {
			c.saveTimer.Stop()
		}
		dirty := c.saveDirty
		c.saveDirty = false
		entries := c.snapshotLocked()
		c.mu.Unlock()

		if dirty {
			c.persist(entries)
		}
	})
}

// expired when the signed URL is about to lapse or the validation is older
// than the TTL ceiling.
func (c *Cache) expiredLocked(e *Entry) bool {
	now := c.opts.Now()
	if !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt.Add(-c.opts.SafetyMargin)) {
		return true
	}
	return now.Sub(e.ValidatedAt) > c.opts.TTL
}
