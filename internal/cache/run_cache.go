// Package cache holds computed lightcurves in memory, keyed by run
// configuration, and keeps the run for the active configuration warm.
//
// A background loop watches the scenario store. When the active configuration
// changes, the new run is computed while the previous one keeps serving reads,
// then swapped in atomically.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/lensgo/internal/metrics"
	"github.com/star/lensgo/internal/scenario"
	"github.com/star/lensgo/internal/simulation"
)

// Config holds cache configuration.
type Config struct {
	TTL        time.Duration // Evict entries not read for this long (default: 10m)
	MaxEntries int           // Upper bound on cached runs (default: 64)
	Interval   time.Duration // Maintenance loop period (default: 1s)
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 64
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	return c
}

// Entry wraps a lightcurve with bookkeeping.
type Entry struct {
	Lightcurve *simulation.Lightcurve
	StoredAt   time.Time
	lastAccess atomic.Int64 // unix nanos
}

func (e *Entry) touch(now time.Time) { e.lastAccess.Store(now.UnixNano()) }

// LastAccess returns when the entry was last stored or read.
func (e *Entry) LastAccess() time.Time { return time.Unix(0, e.lastAccess.Load()) }

// RunCache is an in-memory cache of lightcurves. Safe for concurrent use.
type RunCache struct {
	mu      sync.RWMutex
	entries map[simulation.Config]*Entry

	config  Config
	runner  *simulation.Runner
	store   *scenario.Store
	archive *scenario.Archive // optional
	logger  *slog.Logger

	active        atomic.Pointer[simulation.Lightcurve]
	activeVersion atomic.Uint64
	cutoverMu     sync.Mutex

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	inCutover atomic.Bool
}

// NewRunCache creates a run cache. archive may be nil.
func NewRunCache(config Config, runner *simulation.Runner, store *scenario.Store, archive *scenario.Archive, logger *slog.Logger) *RunCache {
	config = config.withDefaults()
	logger.Info("cache initialized",
		"ttl_seconds", config.TTL.Seconds(),
		"max_entries", config.MaxEntries,
		"interval_ms", config.Interval.Milliseconds(),
		"archive", archive != nil,
	)

	return &RunCache{
		entries: make(map[simulation.Config]*Entry),
		config:  config,
		runner:  runner,
		store:   store,
		archive: archive,
		logger:  logger,
	}
}

// Get returns the cached run for cfg, or nil.
func (c *RunCache) Get(cfg simulation.Config) *simulation.Lightcurve {
	c.mu.RLock()
	entry, ok := c.entries[cfg]
	c.mu.RUnlock()

	if ok {
		entry.touch(time.Now())
		c.hits.Add(1)
		metrics.IncCacheHits()
		return entry.Lightcurve
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// GetOrCompute returns the cached run for cfg, computing and storing it on a
// miss.
func (c *RunCache) GetOrCompute(ctx context.Context, cfg simulation.Config) (*simulation.Lightcurve, error) {
	if lc := c.Get(cfg); lc != nil {
		return lc, nil
	}

	lc, err := c.runner.Run(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Put(lc)
	return lc, nil
}

// Put stores lc under its configuration.
func (c *RunCache) Put(lc *simulation.Lightcurve) {
	now := time.Now()
	entry := &Entry{Lightcurve: lc, StoredAt: now}
	entry.touch(now)

	c.mu.Lock()
	c.entries[lc.Config] = entry
	c.mu.Unlock()

	if n := c.evictOverflow(); n > 0 {
		c.logger.Debug("cache overflow eviction", "entries_removed", n)
	}
	c.updateMetrics()
}

// Active returns the run for the active configuration, or nil before the
// first one has been computed.
func (c *RunCache) Active() *simulation.Lightcurve {
	return c.active.Load()
}

// evictExpired removes entries not read within the TTL. The active run is
// never evicted.
func (c *RunCache) evictExpired() int {
	cutoff := time.Now().Add(-c.config.TTL)
	active := c.active.Load()
	var removed int

	c.mu.Lock()
	for key, entry := range c.entries {
		if active != nil && key == active.Config {
			continue
		}
		if entry.LastAccess().Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.recordEvictions(removed)
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}
	return removed
}

// evictOverflow drops the least recently read entries beyond MaxEntries.
func (c *RunCache) evictOverflow() int {
	active := c.active.Load()

	c.mu.Lock()
	over := len(c.entries) - c.config.MaxEntries
	if over <= 0 {
		c.mu.Unlock()
		return 0
	}

	type candidate struct {
		key  simulation.Config
		last int64
	}
	candidates := make([]candidate, 0, len(c.entries))
	for key, entry := range c.entries {
		if active != nil && key == active.Config {
			continue
		}
		candidates = append(candidates, candidate{key: key, last: entry.lastAccess.Load()})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].last < candidates[j].last
	})

	removed := 0
	for _, cand := range candidates {
		if removed == over {
			break
		}
		delete(c.entries, cand.key)
		removed++
	}
	c.mu.Unlock()

	c.recordEvictions(removed)
	return removed
}

func (c *RunCache) recordEvictions(n int) {
	if n == 0 {
		return
	}
	c.evictions.Add(int64(n))
	metrics.AddCacheEvictions(n)
	c.updateMetrics()
}

// Stats returns current cache statistics.
func (c *RunCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	var samples int
	for _, entry := range c.entries {
		samples += entry.Lightcurve.Len()
	}
	c.mu.RUnlock()

	s := Stats{
		Entries:   count,
		Samples:   samples,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		InCutover: c.inCutover.Load(),
	}
	if active := c.active.Load(); active != nil {
		s.ActiveRunID = active.RunID
	}
	return s
}

// Stats holds cache statistics.
type Stats struct {
	Entries     int    `json:"entries"`
	Samples     int    `json:"samples"`
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	Evictions   int64  `json:"evictions"`
	InCutover   bool   `json:"in_cutover"`
	ActiveRunID string `json:"active_run_id,omitempty"`
}

func (c *RunCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()
	metrics.SetCacheEntries(count)
}
