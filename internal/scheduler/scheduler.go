// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

// Package scheduler drives the periodic backfill job.
//
// The runner ticks on a configurable interval and invokes the backfill
// engine once per tick. Each engine invocation reconciles at most one page
// per collection, so while pages remain the runner keeps going at the
// shorter drain interval; once a run completes with no further pages it
// drops back to the idle interval. Failures are retried with exponential
// backoff rather than aborting the loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/denorm"
)

// Config holds configuration for the backfill runner.
type Config struct {
	// Enabled controls whether the runner is active.
	Enabled bool

	// Interval is the idle tick between completed backfill passes.
	Interval time.Duration

	// DrainInterval is the short tick used while pages remain.
	DrainInterval time.Duration

	// PageSize is forwarded to the engine on every invocation. Zero keeps
	// the engine's persisted value.
	PageSize int

	// RunTimeout bounds a single engine invocation.
	RunTimeout time.Duration

	// MaxBackoff caps the retry delay after consecutive failures.
	MaxBackoff time.Duration

	// DryRun tallies drift without writing; useful for canary deploys.
	DryRun bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Interval:      6 * time.Hour,
		DrainInterval: 5 * time.Second,
		RunTimeout:    2 * time.Minute,
		MaxBackoff:    5 * time.Minute,
	}
}

// Runner periodically invokes the backfill engine.
type Runner struct {
	engine *denorm.Engine
	logger zerolog.Logger
	config Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRunner creates a backfill runner.
func NewRunner(engine *denorm.Engine, logger zerolog.Logger, config Config) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("backfill engine required")
	}
	if config.Interval <= 0 {
		config.Interval = 6 * time.Hour
	}
	if config.DrainInterval <= 0 {
		config.DrainInterval = 5 * time.Second
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 2 * time.Minute
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Minute
	}
	return &Runner{
		engine: engine,
		logger: logger.With().Str("component", "backfill-runner").Logger(),
		config: config,
	}, nil
}

// Start begins the runner loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	if !r.config.Enabled {
		r.logger.Info().Msg("Backfill runner disabled")
		go func() {
			defer close(r.doneCh)
			<-r.stopCh
		}()
		return nil
	}

	r.logger.Info().
		Dur("interval", r.config.Interval).
		Dur("drain_interval", r.config.DrainInterval).
		Bool("dry_run", r.config.DryRun).
		Msg("Starting backfill runner")

	go r.run(ctx)
	return nil
}

// Stop stops the runner loop and waits for it to complete.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.logger.Info().Msg("Backfill runner stopped")
	return nil
}

// run is the main runner loop. The next delay is recomputed after every
// tick: drain interval while pages remain, backoff after failures, idle
// interval once a pass completes.
func (r *Runner) run(ctx context.Context) {
	defer close(r.doneCh)

	failures := 0
	delay := r.config.DrainInterval // first pass starts promptly

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			hasMore, err := r.runOnce(ctx)
			switch {
			case err != nil:
				failures++
				delay = r.backoff(failures)
				r.logger.Error().Err(err).
					Int("consecutive_failures", failures).
					Dur("retry_in", delay).
					Msg("Backfill run failed")
			case hasMore:
				failures = 0
				delay = r.config.DrainInterval
			default:
				failures = 0
				delay = r.config.Interval
			}
			timer.Reset(delay)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runOnce performs a single bounded engine invocation.
func (r *Runner) runOnce(ctx context.Context) (bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.config.RunTimeout)
	defer cancel()

	result, err := r.engine.RunBackfill(runCtx, denorm.BackfillOptions{
		PageSize: r.config.PageSize,
		DryRun:   r.config.DryRun,
	})
	if err != nil {
		return false, err
	}

	r.logger.Debug().
		Interface("processed", result.Processed).
		Interface("updated", result.Updated).
		Bool("has_more", result.HasMore).
		Msg("Backfill page processed")

	// Dry runs never advance persisted cursors, so draining on hasMore
	// would rescan the same first page every tick. Report complete and
	// fall back to the idle interval instead.
	if r.config.DryRun {
		return false, nil
	}
	return result.HasMore, nil
}

// backoff returns the retry delay after n consecutive failures, doubling
// from the drain interval up to MaxBackoff.
func (r *Runner) backoff(n int) time.Duration {
	d := r.config.DrainInterval
	for i := 1; i < n; i++ {
		d *= 2
		if d >= r.config.MaxBackoff {
			return r.config.MaxBackoff
		}
	}
	if d > r.config.MaxBackoff {
		return r.config.MaxBackoff
	}
	return d
}
