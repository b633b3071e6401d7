package cache

import (
	"context"
	"time"

	"github.com/star/lensgo/internal/metrics"
)

// Start runs the background maintenance loop: it waits for an active
// configuration, computes its run, and then on every interval picks up
// configuration changes and evicts stale entries.
//
// Blocks until ctx is cancelled.
func (c *RunCache) Start(ctx context.Context) {
	if !c.waitForConfig(ctx) {
		return
	}

	if err := c.Refresh(ctx); err != nil {
		c.logger.Error("initial run failed", "error", err)
	}

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache loop stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// waitForConfig blocks until the store holds an active configuration.
// Returns false if ctx is cancelled.
func (c *RunCache) waitForConfig(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("cache waiting for active configuration...")
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				return true
			}
		}
	}
}

// tick runs one iteration of the maintenance loop.
func (c *RunCache) tick(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		// Previous active run keeps serving; retried next tick.
		c.logger.Debug("refresh deferred", "error", err)
	}
	c.evictExpired()
	metrics.SetActiveConfigAge(c.store.AgeSeconds())
}
