// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cycle orchestrates one full sense-decide-act pass: fan out to
// every collector, detect situations over the combined signal set, attach
// suggested actions, persist through the situation manager, and notify on
// the results. A Runner executes single cycles; a Scheduler drives the
// Runner on an interval.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/detect"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/manager"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/notify"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/observability"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
)

// =============================================================================
// Errors
// =============================================================================

// ErrCycleInProgress is returned when Run is called while a previous cycle
// still holds the run lock and has not exceeded MaxCycleDuration.
var ErrCycleInProgress = errors.New("cycle: a cycle is already in progress")

// =============================================================================
// Configuration
// =============================================================================

// Config tunes one Runner.
type Config struct {
	// LookBack and LookAhead define the collection window relative to the
	// cycle's start instant.
	LookBack  time.Duration
	LookAhead time.Duration

	// CollectorTimeout bounds each collector individually. A collector
	// that overruns is cancelled and reported; the others still complete.
	CollectorTimeout time.Duration

	// MaxCycleDuration bounds the whole cycle. A later Run finding the
	// run lock held longer than this forcibly reclaims it and logs the
	// stuck cycle as an incident.
	MaxCycleDuration time.Duration

	// NotifyTimeout bounds each outbound notification.
	NotifyTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		LookBack:         24 * time.Hour,
		LookAhead:        48 * time.Hour,
		CollectorTimeout: 10 * time.Second,
		MaxCycleDuration: 2 * time.Minute,
		NotifyTimeout:    15 * time.Second,
	}
}

// =============================================================================
// Collaborator contracts
// =============================================================================

// Detector evaluates a signal set into situation candidates.
type Detector interface {
	Detect(signals []signal.Signal) detect.Result
}

// Suggester attaches suggested actions to a candidate.
type Suggester interface {
	Suggest(c situation.Candidate) []situation.Action
}

// SituationManager is the slice of the manager the runner uses.
type SituationManager interface {
	Upsert(ctx context.Context, c situation.Candidate) (*manager.UpsertResult, error)
	MarkNotified(ctx context.Context, id string) error
	SweepExpired(ctx context.Context) (*manager.SweepReport, error)
}

// AuditSink records the raw signal batch of a cycle for later inspection.
type AuditSink interface {
	WriteBatch(ctx context.Context, cycleID string, collectedAt time.Time, signals []signal.Signal) error
}

// =============================================================================
// Cycle report
// =============================================================================

// CollectorError describes one collector that failed during a cycle.
type CollectorError struct {
	Source string `json:"source"`
	Err    string `json:"error"`
}

// Report summarizes one completed cycle.
type Report struct {
	CycleID   string        `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// SignalsBySource counts collected signals per collector name.
	SignalsBySource map[string]int `json:"signals_by_source"`

	// CollectorErrors lists collectors that failed, timed out, or
	// panicked. A failed collector never aborts the cycle.
	CollectorErrors []CollectorError `json:"collector_errors,omitempty"`

	Candidates int `json:"candidates"`
	Created    int `json:"created"`
	Merged     int `json:"merged"`
	Notified   int `json:"notified"`
	Woken      int `json:"woken"`
	Expired    int `json:"expired"`
}

// =============================================================================
// Runner
// =============================================================================

// Runner executes sense-decide-act cycles.
//
// # Thread Safety
//
// Run is guarded by a run lock: at most one cycle executes at a time, and
// overlapping calls fail fast with ErrCycleInProgress rather than queueing.
type Runner struct {
	collectors []signal.Collector
	detector   Detector
	suggester  Suggester
	manager    SituationManager
	notifier   notify.Notifier
	audit      AuditSink
	metrics    *observability.Metrics
	logger     *slog.Logger
	cfg        Config

	now func() time.Time

	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

// NewRunner wires a runner from its collaborators. notifier, audit, and
// metrics may be nil; the corresponding stage is skipped.
func NewRunner(
	collectors []signal.Collector,
	detector Detector,
	suggester Suggester,
	mgr SituationManager,
	notifier notify.Notifier,
	auditSink AuditSink,
	metrics *observability.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	def := DefaultConfig()
	if cfg.CollectorTimeout <= 0 {
		cfg.CollectorTimeout = def.CollectorTimeout
	}
	if cfg.MaxCycleDuration <= 0 {
		cfg.MaxCycleDuration = def.MaxCycleDuration
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = def.NotifyTimeout
	}
	if cfg.LookBack <= 0 {
		cfg.LookBack = def.LookBack
	}
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = def.LookAhead
	}
	return &Runner{
		collectors: collectors,
		detector:   detector,
		suggester:  suggester,
		manager:    mgr,
		notifier:   notifier,
		audit:      auditSink,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// acquire takes the run lock, reclaiming it from a cycle stuck past
// MaxCycleDuration.
func (r *Runner) acquire(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		held := now.Sub(r.startedAt)
		if held < r.cfg.MaxCycleDuration {
			return ErrCycleInProgress
		}
		r.logger.Error("cycle: reclaiming run lock from stuck cycle",
			"held", held.String(),
			"max_cycle_duration", r.cfg.MaxCycleDuration.String(),
		)
	}
	r.running = true
	r.startedAt = now
	return nil
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// Run executes one cycle and returns its report.
//
// # Description
//
// Stages run in order: collect (concurrent fan-out, per-collector
// timeout), detect, suggest, persist, notify, sweep. A failure in any
// one collector, candidate, or notification is reported and skipped;
// only a persist-stage storage failure that leaves nothing to report
// aborts the cycle.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := r.now().UTC()
	if err := r.acquire(start); err != nil {
		return nil, err
	}
	defer r.release()

	report := &Report{
		CycleID:         uuid.NewString(),
		StartedAt:       start,
		SignalsBySource: make(map[string]int),
	}
	logger := r.logger.With("cycle_id", report.CycleID)
	logger.Info("cycle: starting",
		"collectors", len(r.collectors),
	)

	signals := r.collect(ctx, report, logger)
	candidates := r.detect(signals, report, logger)
	results := r.persist(ctx, candidates, report, logger)
	r.notifyAll(ctx, results, report, logger)
	r.sweep(ctx, report, logger)

	if r.audit != nil {
		if err := r.audit.WriteBatch(ctx, report.CycleID, start, signals); err != nil {
			logger.Warn("cycle: audit batch write failed", "error", err)
		}
	}

	report.Duration = r.now().UTC().Sub(start)
	status := "ok"
	if len(report.CollectorErrors) > 0 {
		status = "degraded"
	}
	r.metrics.RecordCycle(status, report.Duration.Seconds())
	logger.Info("cycle: finished",
		"status", status,
		"duration", report.Duration.String(),
		"signals", len(signals),
		"candidates", report.Candidates,
		"created", report.Created,
		"merged", report.Merged,
		"notified", report.Notified,
		"expired", report.Expired,
	)
	return report, nil
}

// collect fans out to every collector concurrently. Each collector gets
// its own timeout and recover boundary; one slow or panicking collector
// never starves the rest.
func (r *Runner) collect(ctx context.Context, report *Report, logger *slog.Logger) []signal.Signal {
	window := signal.Window{
		Now:       report.StartedAt,
		LookBack:  r.cfg.LookBack,
		LookAhead: r.cfg.LookAhead,
	}

	type outcome struct {
		source  string
		signals []signal.Signal
		err     error
	}
	outcomes := make([]outcome, len(r.collectors))

	// Plain group, no shared cancellation: a failing collector must not
	// cancel its siblings.
	g := new(errgroup.Group)
	for i, c := range r.collectors {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, r.cfg.CollectorTimeout)
			defer cancel()

			signals, err := r.collectOne(cctx, c, window)
			outcomes[i] = outcome{source: c.Name(), signals: signals, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var all []signal.Signal
	for _, o := range outcomes {
		if o.err != nil {
			reason := "error"
			if errors.Is(o.err, context.DeadlineExceeded) {
				reason = "timeout"
			}
			report.CollectorErrors = append(report.CollectorErrors, CollectorError{
				Source: o.source,
				Err:    o.err.Error(),
			})
			r.metrics.RecordCollectorFailure(o.source, reason)
			logger.Warn("cycle: collector failed",
				"source", o.source,
				"reason", reason,
				"error", o.err,
			)
			continue
		}
		report.SignalsBySource[o.source] = len(o.signals)
		r.metrics.RecordCollection(o.source, len(o.signals))
		all = append(all, o.signals...)
	}
	return all
}

// collectOne invokes a single collector inside a recover boundary.
func (r *Runner) collectOne(ctx context.Context, c signal.Collector, w signal.Window) (signals []signal.Signal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			signals = nil
			err = fmt.Errorf("collector panicked: %v", rec)
		}
	}()

	signals, err = c.Collect(ctx, w)
	if err == nil && ctx.Err() != nil {
		// Collector returned stale data after its deadline passed.
		return nil, ctx.Err()
	}
	return signals, err
}

// detect runs the rule registry and attaches suggested actions.
func (r *Runner) detect(signals []signal.Signal, report *Report, logger *slog.Logger) []situation.Candidate {
	result := r.detector.Detect(signals)
	for _, outcome := range result.Rules {
		if outcome.Err != "" {
			r.metrics.RecordRuleFailure(outcome.Rule)
			logger.Warn("cycle: rule failed",
				"rule", outcome.Rule,
				"error", outcome.Err,
			)
			continue
		}
		r.metrics.RecordRuleMatches(outcome.Rule, outcome.Matches)
	}

	candidates := result.Candidates
	for i := range candidates {
		candidates[i].Actions = r.suggester.Suggest(candidates[i])
	}
	report.Candidates = len(candidates)
	return candidates
}

// persist upserts each candidate and collects the results that warrant a
// notification. A storage failure on one candidate skips that candidate
// only.
func (r *Runner) persist(ctx context.Context, candidates []situation.Candidate, report *Report, logger *slog.Logger) []*manager.UpsertResult {
	var toNotify []*manager.UpsertResult
	for _, c := range candidates {
		res, err := r.manager.Upsert(ctx, c)
		if err != nil {
			logger.Error("cycle: candidate upsert failed",
				"situation_type", c.Type,
				"error", err,
			)
			continue
		}
		r.metrics.RecordSituation(c.Type, res.Created)
		if res.Created {
			report.Created++
		} else {
			report.Merged++
		}
		if res.ShouldNotify {
			toNotify = append(toNotify, res)
		}
	}
	return toNotify
}

// notifyAll delivers one notification per qualifying situation. Delivery
// failures are logged and counted; the situation stays un-notified so
// the next cycle retries it.
func (r *Runner) notifyAll(ctx context.Context, results []*manager.UpsertResult, report *Report, logger *slog.Logger) {
	for _, res := range results {
		nctx, cancel := context.WithTimeout(ctx, r.cfg.NotifyTimeout)
		err := r.notifier.Notify(nctx, res.Situation)
		cancel()
		if err != nil {
			r.metrics.RecordNotification("failed")
			logger.Warn("cycle: notification failed",
				"situation_id", res.Situation.ID,
				"error", err,
			)
			continue
		}
		if err := r.manager.MarkNotified(ctx, res.Situation.ID); err != nil {
			logger.Warn("cycle: mark-notified failed",
				"situation_id", res.Situation.ID,
				"error", err,
			)
		}
		r.metrics.RecordNotification("delivered")
		report.Notified++
	}
}

// sweep wakes elapsed snoozes and expires situations past their TTL.
func (r *Runner) sweep(ctx context.Context, report *Report, logger *slog.Logger) {
	swept, err := r.manager.SweepExpired(ctx)
	if err != nil {
		logger.Error("cycle: lifecycle sweep failed", "error", err)
		return
	}
	report.Woken = len(swept.Woken)
	report.Expired = len(swept.Expired)
	r.metrics.RecordExpired(report.Expired)
}
