package simulation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/star/lensgo/internal/lensing"
	"github.com/star/lensgo/internal/metrics"
)

// Runner wraps Run with logging, metrics and a worker pool for sweeps.
type Runner struct {
	pool   *WorkerPool
	logger *slog.Logger
}

// NewRunner creates a Runner whose sweeps use the given number of workers.
func NewRunner(workers int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	metrics.SetSweepWorkers(workers)
	return &Runner{
		pool:   NewWorkerPool(workers, logger),
		logger: logger,
	}
}

// Run computes one lightcurve and records it. The context is only checked
// before starting; a single run is short and not interruptible.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Lightcurve, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	lc, err := Run(cfg)
	duration := time.Since(start)

	if err != nil {
		metrics.RecordRun(duration, 0, resultLabel(err))
		r.logger.Debug("run rejected", "config", cfg.String(), "error", err)
		return nil, err
	}

	metrics.RecordRun(duration, lc.Len(), "ok")
	r.logger.Debug("run complete",
		"run_id", lc.RunID,
		"config", cfg.String(),
		"peak_step", lc.PeakStep,
		"peak_magnification", lc.MaxMagnification,
		"duration_us", duration.Microseconds(),
	)
	return lc, nil
}

// Sweep runs base once per mass ratio and summarizes each run's peak.
// Results are returned in input order.
func (r *Runner) Sweep(ctx context.Context, base Config, massRatios []float64) []SweepResult {
	configs := make([]Config, len(massRatios))
	for i, q := range massRatios {
		cfg := base
		cfg.MassRatio = q
		configs[i] = cfg
	}

	start := time.Now()
	results := r.pool.RunBatch(ctx, configs)
	r.logger.Debug("sweep complete",
		"runs", len(configs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results
}

// resultLabel classifies a run error for the runs_total metric.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, lensing.ErrInvalidConfiguration):
		return "invalid"
	default:
		return "error"
	}
}
