package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/star/lensgo/internal/metrics"
)

// configChanged reports whether the store holds a configuration the active
// run was not computed from.
func (c *RunCache) configChanged() bool {
	if c.store.Get() == nil {
		return false
	}
	return c.store.Version() != c.activeVersion.Load() || c.active.Load() == nil
}

// Refresh recomputes the active run if the store's configuration changed.
// Reads keep returning the previous active run until the new one is stored.
// Safe to call concurrently with the maintenance loop.
func (c *RunCache) Refresh(ctx context.Context) error {
	c.cutoverMu.Lock()
	defer c.cutoverMu.Unlock()

	if !c.configChanged() {
		return nil
	}
	return c.performCutover(ctx)
}

func (c *RunCache) performCutover(ctx context.Context) error {
	version := c.store.Version()
	next := c.store.Get()
	if next == nil {
		return nil
	}

	old := c.active.Load()
	if old != nil {
		c.logger.Info("cutover starting",
			"old_config", old.Config.String(),
			"new_config", next.Config.String(),
			"source", next.Source,
		)
	}

	c.inCutover.Store(true)
	metrics.SetCacheCutoverActive(true)
	defer func() {
		c.inCutover.Store(false)
		metrics.SetCacheCutoverActive(false)
	}()

	start := time.Now()
	lc := c.Get(next.Config)
	if lc == nil {
		var err error
		lc, err = c.runner.Run(ctx, next.Config)
		if err != nil {
			metrics.IncCacheRecomputeErrors()
			c.logger.Warn("cutover run failed", "config", next.Config.String(), "error", err)
			return fmt.Errorf("computing active run: %w", err)
		}
		c.Put(lc)
	}

	c.active.Store(lc)
	c.activeVersion.Store(version)

	duration := time.Since(start)
	metrics.ObserveCacheRecomputeDuration(duration)
	metrics.SetActivePeakMagnification(lc.MaxMagnification)

	c.logger.Info("cutover complete",
		"run_id", lc.RunID,
		"config", lc.Config.String(),
		"peak_step", lc.PeakStep,
		"duration_ms", duration.Milliseconds(),
	)

	if c.archive != nil {
		if err := c.archive.Write(lc); err != nil {
			c.logger.Warn("archiving active run failed", "run_id", lc.RunID, "error", err)
		}
	}
	return nil
}
