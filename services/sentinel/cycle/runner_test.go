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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/detect"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/manager"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeCollector struct {
	name    string
	signals []signal.Signal
	err     error
	panics  bool

	// block, when set, holds Collect until the channel closes or the
	// collector's context expires.
	block chan struct{}
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Collect(ctx context.Context, _ signal.Window) ([]signal.Signal, error) {
	if f.panics {
		panic("collector exploded")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.signals, f.err
}

type fakeDetector struct {
	mu       sync.Mutex
	received []signal.Signal
	result   detect.Result
}

func (f *fakeDetector) Detect(signals []signal.Signal) detect.Result {
	f.mu.Lock()
	f.received = signals
	f.mu.Unlock()
	return f.result
}

type fakeSuggester struct {
	actions []situation.Action
}

func (f *fakeSuggester) Suggest(situation.Candidate) []situation.Action {
	return f.actions
}

type fakeManager struct {
	mu        sync.Mutex
	upserted  []situation.Candidate
	notified  []string
	results   map[string]*manager.UpsertResult
	upsertErr error
	sweep     manager.SweepReport
}

func (f *fakeManager) Upsert(_ context.Context, c situation.Candidate) (*manager.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserted = append(f.upserted, c)
	if res, ok := f.results[c.Type]; ok {
		return res, nil
	}
	return &manager.UpsertResult{
		Situation: &situation.Situation{ID: "sit-" + c.Type, Type: c.Type},
		Created:   true,
	}, nil
}

func (f *fakeManager) MarkNotified(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, id)
	return nil
}

func (f *fakeManager) SweepExpired(context.Context) (*manager.SweepReport, error) {
	report := f.sweep
	return &report, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []string
	err       error
}

func (f *fakeNotifier) Notify(_ context.Context, s *situation.Situation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, s.ID)
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	cycleID string
	signals []signal.Signal
	calls   int
}

func (f *fakeAudit) WriteBatch(_ context.Context, cycleID string, _ time.Time, signals []signal.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycleID = cycleID
	f.signals = signals
	f.calls++
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func testSignal(id string, typ signal.Type) signal.Signal {
	return signal.Signal{
		ID:        id,
		Type:      typ,
		Source:    "test",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestRunner(t *testing.T, collectors []signal.Collector, det *fakeDetector, mgr *fakeManager, notifier *fakeNotifier, cfg Config) *Runner {
	t.Helper()
	if det == nil {
		det = &fakeDetector{}
	}
	if mgr == nil {
		mgr = &fakeManager{}
	}
	return NewRunner(
		collectors,
		det,
		&fakeSuggester{},
		mgr,
		notifier,
		nil,
		nil,
		slog.Default(),
		cfg,
	)
}

// =============================================================================
// Runner Tests
// =============================================================================

func TestRunGathersSignalsFromAllCollectors(t *testing.T) {
	det := &fakeDetector{}
	collectors := []signal.Collector{
		&fakeCollector{name: "calendar", signals: []signal.Signal{
			testSignal("s1", signal.TypeEventUpcoming24h),
			testSignal("s2", signal.TypeEventConflict),
		}},
		&fakeCollector{name: "email", signals: []signal.Signal{
			testSignal("s3", signal.TypeEmailPriorityHigh),
		}},
		&fakeCollector{name: "tasks"},
	}
	r := newTestRunner(t, collectors, det, nil, nil, Config{})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.SignalsBySource["calendar"])
	assert.Equal(t, 1, report.SignalsBySource["email"])
	assert.Equal(t, 0, report.SignalsBySource["tasks"])
	assert.Empty(t, report.CollectorErrors)
	assert.Len(t, det.received, 3)
	assert.NotEmpty(t, report.CycleID)
	assert.False(t, report.StartedAt.IsZero())
}

func TestRunIsolatesFailingCollectors(t *testing.T) {
	det := &fakeDetector{}
	collectors := []signal.Collector{
		&fakeCollector{name: "calendar", err: errors.New("backend down")},
		&fakeCollector{name: "weather", panics: true},
		&fakeCollector{name: "email", signals: []signal.Signal{
			testSignal("s1", signal.TypeEmailPriorityHigh),
		}},
	}
	r := newTestRunner(t, collectors, det, nil, nil, Config{})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.CollectorErrors, 2)
	sources := []string{report.CollectorErrors[0].Source, report.CollectorErrors[1].Source}
	assert.ElementsMatch(t, []string{"calendar", "weather"}, sources)

	// The healthy collector's signals still reach detection.
	assert.Len(t, det.received, 1)
	assert.Equal(t, 1, report.SignalsBySource["email"])
}

func TestSlowCollectorTimesOutWithoutStarvingOthers(t *testing.T) {
	det := &fakeDetector{}
	stuck := &fakeCollector{name: "trends", block: make(chan struct{})}
	collectors := []signal.Collector{
		stuck,
		&fakeCollector{name: "email", signals: []signal.Signal{
			testSignal("s1", signal.TypeEmailPriorityHigh),
		}},
	}
	r := newTestRunner(t, collectors, det, nil, nil, Config{
		CollectorTimeout: 20 * time.Millisecond,
	})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.CollectorErrors, 1)
	assert.Equal(t, "trends", report.CollectorErrors[0].Source)
	assert.Contains(t, report.CollectorErrors[0].Err, "deadline")
	assert.Len(t, det.received, 1)
}

func TestRunPersistsAndNotifiesCandidates(t *testing.T) {
	det := &fakeDetector{result: detect.Result{
		Candidates: []situation.Candidate{
			{Type: "deadline", Title: "Prep needed"},
			{Type: "inbox_pressure", Title: "Inbox piling up"},
		},
	}}
	mgr := &fakeManager{results: map[string]*manager.UpsertResult{
		"deadline": {
			Situation:    &situation.Situation{ID: "sit-1", Type: "deadline"},
			Created:      true,
			ShouldNotify: true,
		},
		"inbox_pressure": {
			Situation: &situation.Situation{ID: "sit-2", Type: "inbox_pressure"},
			Created:   false,
		},
	}}
	notifier := &fakeNotifier{}
	r := newTestRunner(t, nil, det, mgr, notifier, Config{})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Merged)
	assert.Equal(t, 1, report.Notified)
	assert.Equal(t, []string{"sit-1"}, notifier.delivered)
	assert.Equal(t, []string{"sit-1"}, mgr.notified)
}

func TestRunAttachesSuggestedActions(t *testing.T) {
	det := &fakeDetector{result: detect.Result{
		Candidates: []situation.Candidate{{Type: "deadline"}},
	}}
	mgr := &fakeManager{}
	r := NewRunner(
		nil,
		det,
		&fakeSuggester{actions: []situation.Action{
			{Type: "block_prep_time", Urgency: situation.UrgencyHigh},
		}},
		mgr,
		nil, nil, nil,
		slog.Default(),
		Config{},
	)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, mgr.upserted, 1)
	require.Len(t, mgr.upserted[0].Actions, 1)
	assert.Equal(t, "block_prep_time", mgr.upserted[0].Actions[0].Type)
}

func TestUpsertFailureSkipsCandidateOnly(t *testing.T) {
	det := &fakeDetector{result: detect.Result{
		Candidates: []situation.Candidate{{Type: "deadline"}},
	}}
	mgr := &fakeManager{upsertErr: errors.New("disk full")}
	r := newTestRunner(t, nil, det, mgr, nil, Config{})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Merged)
}

func TestNotificationFailureDoesNotFailCycle(t *testing.T) {
	det := &fakeDetector{result: detect.Result{
		Candidates: []situation.Candidate{{Type: "deadline"}},
	}}
	mgr := &fakeManager{results: map[string]*manager.UpsertResult{
		"deadline": {
			Situation:    &situation.Situation{ID: "sit-1", Type: "deadline"},
			Created:      true,
			ShouldNotify: true,
		},
	}}
	notifier := &fakeNotifier{err: errors.New("webhook unreachable")}
	r := newTestRunner(t, nil, det, mgr, notifier, Config{})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Notified)
	// The situation stays un-notified so a later cycle retries it.
	assert.Empty(t, mgr.notified)
}

func TestRunWritesAuditBatch(t *testing.T) {
	det := &fakeDetector{}
	sink := &fakeAudit{}
	r := NewRunner(
		[]signal.Collector{&fakeCollector{name: "email", signals: []signal.Signal{
			testSignal("s1", signal.TypeEmailPriorityHigh),
		}}},
		det,
		&fakeSuggester{},
		&fakeManager{},
		nil, sink, nil,
		slog.Default(),
		Config{},
	)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, report.CycleID, sink.cycleID)
	assert.Len(t, sink.signals, 1)
}

func TestRunReportsSweepOutcome(t *testing.T) {
	mgr := &fakeManager{sweep: manager.SweepReport{
		Woken:   []string{"sit-1"},
		Expired: []string{"sit-2", "sit-3"},
	}}
	r := newTestRunner(t, nil, nil, mgr, nil, Config{})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Woken)
	assert.Equal(t, 2, report.Expired)
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	release := make(chan struct{})
	stuck := &fakeCollector{name: "slow", block: release}
	r := newTestRunner(t, []signal.Collector{stuck}, nil, nil, nil, Config{
		CollectorTimeout: time.Minute,
		MaxCycleDuration: time.Minute,
	})

	firstDone := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		firstDone <- err
	}()

	// Wait for the first run to take the lock.
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.running
	}, time.Second, 5*time.Millisecond)

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(release)
	require.NoError(t, <-firstDone)
}

func TestStuckRunLockIsReclaimed(t *testing.T) {
	r := newTestRunner(t, nil, nil, nil, nil, Config{
		MaxCycleDuration: 50 * time.Millisecond,
	})

	// Simulate a cycle that died while holding the lock.
	r.mu.Lock()
	r.running = true
	r.startedAt = time.Now().UTC().Add(-time.Minute)
	r.mu.Unlock()

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.CycleID)
}
