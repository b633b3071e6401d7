package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/star/lensgo/internal/scenario"
	"github.com/star/lensgo/internal/simulation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testCache(t *testing.T, cfg Config, archive *scenario.Archive) (*RunCache, *scenario.Store) {
	t.Helper()
	store := scenario.NewStore()
	runner := simulation.NewRunner(2, testLogger())
	return NewRunCache(cfg, runner, store, archive, testLogger()), store
}

func cfgWithPeriod(period int) simulation.Config {
	return simulation.Config{OrbitalPeriod: period, MassRatio: 0.001, ObserverAngleDeg: 90}
}

// TestRunCache tests basic cache operations: put, get, stats.
func TestRunCache(t *testing.T) {
	c, _ := testCache(t, Config{}, nil)

	cfg := cfgWithPeriod(200)
	if c.Get(cfg) != nil {
		t.Fatal("expected miss on empty cache")
	}

	lc, err := c.GetOrCompute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}

	got := c.Get(cfg)
	if got != lc {
		t.Fatal("expected cache hit returning the computed run")
	}

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("entries: got %d, want 1", stats.Entries)
	}
	if stats.Samples != 200 {
		t.Errorf("samples: got %d, want 200", stats.Samples)
	}
	// Initial Get and the miss inside GetOrCompute.
	if stats.Misses != 2 {
		t.Errorf("misses: got %d, want 2", stats.Misses)
	}
	if stats.Hits != 1 {
		t.Errorf("hits: got %d, want 1", stats.Hits)
	}
}

func TestGetOrComputeInvalid(t *testing.T) {
	c, _ := testCache(t, Config{}, nil)

	if _, err := c.GetOrCompute(context.Background(), simulation.Config{OrbitalPeriod: 0, MassRatio: 0.001}); err == nil {
		t.Fatal("expected error for invalid config")
	}
	if c.Stats().Entries != 0 {
		t.Error("invalid config must not be cached")
	}
}

// TestEvictExpired verifies entries idle past the TTL are removed.
func TestEvictExpired(t *testing.T) {
	c, _ := testCache(t, Config{TTL: time.Minute}, nil)

	for _, p := range []int{100, 200, 300} {
		lc, err := simulation.Run(cfgWithPeriod(p))
		if err != nil {
			t.Fatal(err)
		}
		c.Put(lc)
	}

	// Age two entries past the TTL.
	stale := time.Now().Add(-2 * time.Minute)
	c.mu.RLock()
	c.entries[cfgWithPeriod(100)].touch(stale)
	c.entries[cfgWithPeriod(200)].touch(stale)
	c.mu.RUnlock()

	if removed := c.evictExpired(); removed != 2 {
		t.Errorf("evictExpired removed %d, want 2", removed)
	}
	if c.Get(cfgWithPeriod(300)) == nil {
		t.Error("fresh entry was evicted")
	}
	if got := c.Stats().Evictions; got != 2 {
		t.Errorf("evictions: got %d, want 2", got)
	}
}

// TestEvictOverflow verifies the least recently read entry goes first.
func TestEvictOverflow(t *testing.T) {
	c, _ := testCache(t, Config{MaxEntries: 2}, nil)

	ctx := context.Background()
	if _, err := c.GetOrCompute(ctx, cfgWithPeriod(100)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, err := c.GetOrCompute(ctx, cfgWithPeriod(200)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	// Refresh 100 so 200 becomes the oldest.
	c.Get(cfgWithPeriod(100))
	time.Sleep(time.Millisecond)
	if _, err := c.GetOrCompute(ctx, cfgWithPeriod(300)); err != nil {
		t.Fatal(err)
	}

	if c.Stats().Entries != 2 {
		t.Fatalf("entries: got %d, want 2", c.Stats().Entries)
	}
	if c.Get(cfgWithPeriod(200)) != nil {
		t.Error("least recently used entry should have been evicted")
	}
	if c.Get(cfgWithPeriod(100)) == nil || c.Get(cfgWithPeriod(300)) == nil {
		t.Error("recently used entries should remain")
	}
}

// TestCutover verifies the active run follows the store and the previous run
// serves until the new one is ready.
func TestCutover(t *testing.T) {
	archive := scenario.NewArchive(t.TempDir(), 5)
	c, store := testCache(t, Config{}, archive)
	ctx := context.Background()

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh with empty store: %v", err)
	}
	if c.Active() != nil {
		t.Fatal("no active run expected before a configuration is set")
	}

	store.Set(cfgWithPeriod(200), "test")
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	first := c.Active()
	if first == nil || first.Config != cfgWithPeriod(200) {
		t.Fatalf("active = %+v, want period 200", first)
	}

	// No change: same run.
	if err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Active() != first {
		t.Error("Refresh without a change replaced the active run")
	}

	store.Set(cfgWithPeriod(400), "test")
	if c.Active() != first {
		t.Error("active run changed before Refresh")
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	second := c.Active()
	if second == first || second.Config != cfgWithPeriod(400) {
		t.Errorf("active after cutover = %+v", second.Config)
	}
	if c.Stats().InCutover {
		t.Error("cutover flag left set")
	}

	n, err := archive.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("archived %d runs, want 2", n)
	}
	rec, err := archive.LoadLatest()
	if err != nil {
		t.Fatal(err)
	}
	if rec.RunID != second.RunID {
		t.Errorf("latest archived run %s, want %s", rec.RunID, second.RunID)
	}
}

// TestCutoverBackToCachedRun switches A, B, then back to A. The reused run
// must be archived as the newest record.
func TestCutoverBackToCachedRun(t *testing.T) {
	archive := scenario.NewArchive(t.TempDir(), 5)
	c, store := testCache(t, Config{}, archive)
	ctx := context.Background()

	var runs []*simulation.Lightcurve
	for _, period := range []int{200, 300, 200} {
		store.Set(cfgWithPeriod(period), "test")
		if err := c.Refresh(ctx); err != nil {
			t.Fatalf("Refresh(period %d): %v", period, err)
		}
		runs = append(runs, c.Active())
	}

	if runs[2] != runs[0] {
		t.Error("switching back did not reuse the cached run")
	}

	n, err := archive.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("archived %d runs, want 3", n)
	}

	rec, err := archive.LoadLatest()
	if err != nil {
		t.Fatal(err)
	}
	active := c.Active()
	if rec.RunID != active.RunID || rec.Config != active.Config {
		t.Errorf("latest archived run %s (period %d), want active %s (period %d)",
			rec.RunID, rec.Config.OrbitalPeriod, active.RunID, active.Config.OrbitalPeriod)
	}
}

// TestActiveNotEvicted verifies eviction skips the active run.
func TestActiveNotEvicted(t *testing.T) {
	c, store := testCache(t, Config{TTL: time.Minute}, nil)
	store.Set(cfgWithPeriod(200), "test")
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.mu.RLock()
	c.entries[cfgWithPeriod(200)].touch(time.Now().Add(-time.Hour))
	c.mu.RUnlock()

	if removed := c.evictExpired(); removed != 0 {
		t.Errorf("evictExpired removed %d, want 0", removed)
	}
}

// TestStartLoop verifies the background loop picks up the initial
// configuration and later changes.
func TestStartLoop(t *testing.T) {
	c, store := testCache(t, Config{Interval: 10 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	store.Set(cfgWithPeriod(100), "test")
	waitFor(t, func() bool {
		a := c.Active()
		return a != nil && a.Config == cfgWithPeriod(100)
	})

	store.Set(cfgWithPeriod(300), "test")
	waitFor(t, func() bool {
		a := c.Active()
		return a != nil && a.Config == cfgWithPeriod(300)
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}
