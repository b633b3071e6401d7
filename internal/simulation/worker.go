package simulation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/star/lensgo/internal/metrics"
)

// SweepResult summarizes one run of a sweep.
type SweepResult struct {
	Config            Config  `json:"config"`
	PeakMagnification float64 `json:"peak_magnification"`
	PeakStep          int     `json:"peak_step"`
	ElevatedSteps     int     `json:"elevated_steps"` // steps with magnification > 1
	Error             string  `json:"error,omitempty"`
}

// runJob is a unit of work for the worker pool.
type runJob struct {
	index int
	cfg   Config
}

// runResult is the output of a single job.
type runResult struct {
	index  int
	result SweepResult
}

// WorkerPool runs independent configurations in parallel. Each run is itself
// single-threaded; workers never share run state.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// RunBatch runs every configuration and returns one SweepResult per input, in
// input order. Failed runs carry their error text. Jobs not started before ctx
// is cancelled report ctx.Err().
func (wp *WorkerPool) RunBatch(ctx context.Context, configs []Config) []SweepResult {
	out := make([]SweepResult, len(configs))
	if len(configs) == 0 {
		return out
	}

	jobs := make(chan runJob, wp.workers*2)
	results := make(chan runResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res := runResult{index: job.index, result: runSingle(job.cfg)}
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, cfg := range configs {
			select {
			case jobs <- runJob{index: i, cfg: cfg}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	done := make([]bool, len(configs))
	for res := range results {
		out[res.index] = res.result
		done[res.index] = true
		if res.result.Error != "" {
			wp.logger.Warn("sweep run failed",
				"config", res.result.Config.String(),
				"error", res.result.Error,
			)
		}
	}

	for i := range out {
		if !done[i] {
			out[i] = SweepResult{Config: configs[i], Error: context.Cause(ctx).Error()}
		}
	}
	return out
}

// runSingle computes one run and reduces it to a SweepResult.
func runSingle(cfg Config) SweepResult {
	start := time.Now()
	lc, err := Run(cfg)
	if err != nil {
		metrics.RecordRun(time.Since(start), 0, resultLabel(err))
		return SweepResult{Config: cfg, Error: err.Error()}
	}
	metrics.RecordRun(time.Since(start), lc.Len(), "ok")

	elevated := 0
	for _, m := range lc.Magnifications {
		if m > 1 {
			elevated++
		}
	}
	return SweepResult{
		Config:            cfg,
		PeakMagnification: lc.MaxMagnification,
		PeakStep:          lc.PeakStep,
		ElevatedSteps:     elevated,
	}
}
