// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Scheduler
// =============================================================================

// SchedulerConfig tunes the background cycle loop.
type SchedulerConfig struct {
	// Interval is the period between cycle starts.
	Interval time.Duration

	// RunOnStart triggers an immediate cycle when the scheduler starts
	// instead of waiting a full interval.
	RunOnStart bool
}

// DefaultSchedulerConfig returns production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   15 * time.Minute,
		RunOnStart: true,
	}
}

// Scheduler drives a Runner on a fixed interval.
//
// # Thread Safety
//
// Start and Stop are safe to call from multiple goroutines. Start on a
// running scheduler returns an error; Stop on a stopped scheduler is a
// no-op.
type Scheduler struct {
	runner *Runner
	logger *slog.Logger
	cfg    SchedulerConfig

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// NewScheduler creates a scheduler over the given runner.
func NewScheduler(runner *Runner, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		runner: runner,
		logger: logger,
		cfg:    cfg,
	}
}

// Start launches the background loop. It returns immediately; cycles run
// on the scheduler's own goroutine until Stop is called or ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("cycle: scheduler already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	s.logger.Info("cycle: scheduler starting",
		"interval", s.cfg.Interval.String(),
		"run_on_start", s.cfg.RunOnStart,
	)
	go s.runLoop(ctx, s.done, s.stopped)
	return nil
}

// Stop signals the loop to exit and waits for the in-flight cycle, if
// any, to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	done, stopped := s.done, s.stopped
	s.mu.Unlock()

	close(done)
	<-stopped
	s.logger.Info("cycle: scheduler stopped")
}

// RunNow executes one cycle immediately, outside the schedule. The
// scheduler does not need to be started.
func (s *Scheduler) RunNow(ctx context.Context) (*Report, error) {
	return s.runner.Run(ctx)
}

// runLoop is the scheduler goroutine: an optional immediate cycle, then
// one per tick until done closes or ctx is cancelled.
func (s *Scheduler) runLoop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	if s.cfg.RunOnStart {
		s.execute(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			s.logger.Info("cycle: scheduler context cancelled")
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

// execute runs one cycle, isolating failures so the loop never exits on
// a bad cycle.
func (s *Scheduler) execute(ctx context.Context) {
	report, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Warn("cycle: scheduled run skipped, previous cycle still active")
	case err != nil:
		s.logger.Error("cycle: scheduled run failed", "error", err)
	default:
		s.logger.Debug("cycle: scheduled run complete",
			"cycle_id", report.CycleID,
			"duration", report.Duration.String(),
		)
	}
}
