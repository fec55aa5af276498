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
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// countingCollector counts Collect calls, one per cycle.
type countingCollector struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCollector) Name() string { return "counting" }

func (c *countingCollector) Collect(context.Context, signal.Window) ([]signal.Signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, nil
}

func (c *countingCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newSchedulerUnderTest(t *testing.T, cfg SchedulerConfig) (*Scheduler, *countingCollector) {
	t.Helper()
	collector := &countingCollector{}
	runner := newTestRunner(t, []signal.Collector{collector}, nil, nil, nil, Config{})
	return NewScheduler(runner, slog.Default(), cfg), collector
}

func TestSchedulerRunsImmediatelyOnStart(t *testing.T) {
	s, collector := newSchedulerUnderTest(t, SchedulerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return collector.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerTicksOnInterval(t *testing.T) {
	s, collector := newSchedulerUnderTest(t, SchedulerConfig{
		Interval: 15 * time.Millisecond,
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return collector.count() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerRejectsDoubleStart(t *testing.T) {
	s, _ := newSchedulerUnderTest(t, SchedulerConfig{Interval: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s, _ := newSchedulerUnderTest(t, SchedulerConfig{Interval: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()

	// A stopped scheduler can be started again.
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, collector := newSchedulerUnderTest(t, SchedulerConfig{
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
	})

	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool {
		return collector.count() >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
	after := collector.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, collector.count())

	s.Stop()
}

func TestRunNowWorksWithoutStart(t *testing.T) {
	s, collector := newSchedulerUnderTest(t, SchedulerConfig{Interval: time.Hour})

	report, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.CycleID)
	assert.Equal(t, 1, collector.count())
}
