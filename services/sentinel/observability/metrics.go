// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the sentinel
// pipeline.
//
// # Description
//
// Metrics cover the full cycle: collection fan-out, rule evaluation,
// situation lifecycle, and notification delivery. Exposed on the
// /metrics endpoint; use with Prometheus + Grafana for dashboards and
// alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for sentinel pipeline metrics
const sentinelSubsystem = "sentinel"

// Metrics holds all Prometheus metrics for the sentinel pipeline.
// Initialize once at startup via InitMetrics().
type Metrics struct {
	// CyclesTotal counts completed cycles by outcome.
	// Labels: status (success, partial, error, skipped)
	CyclesTotal *prometheus.CounterVec

	// CycleDurationSeconds measures end-to-end cycle duration.
	CycleDurationSeconds prometheus.Histogram

	// SignalsCollected counts signals by collector source.
	// Labels: source
	SignalsCollected *prometheus.CounterVec

	// CollectorFailures counts collector errors by source and reason.
	// Labels: source, reason (error, timeout, panic)
	CollectorFailures *prometheus.CounterVec

	// RuleMatches counts detector matches by rule.
	// Labels: rule
	RuleMatches *prometheus.CounterVec

	// RuleFailures counts isolated rule evaluation failures.
	// Labels: rule
	RuleFailures *prometheus.CounterVec

	// SituationsTotal counts manager outcomes.
	// Labels: situation_type, outcome (created, merged)
	SituationsTotal *prometheus.CounterVec

	// SituationsExpired counts situations expired by the sweep.
	SituationsExpired prometheus.Counter

	// NotificationsTotal counts notification deliveries.
	// Labels: outcome (delivered, failed, suppressed)
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics creates all pipeline metrics and registers them on reg.
// Each service owns a private registry served on its /metrics endpoint,
// so constructing a second service never collides on metric names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "cycles_total",
				Help:      "Total pipeline cycles by outcome",
			},
			[]string{"status"},
		),

		CycleDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "cycle_duration_seconds",
				Help:      "End-to-end cycle duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		SignalsCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "signals_collected_total",
				Help:      "Signals collected by source",
			},
			[]string{"source"},
		),

		CollectorFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "collector_failures_total",
				Help:      "Collector failures by source and reason",
			},
			[]string{"source", "reason"},
		),

		RuleMatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "rule_matches_total",
				Help:      "Detector rule matches by rule name",
			},
			[]string{"rule"},
		),

		RuleFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "rule_failures_total",
				Help:      "Isolated rule evaluation failures by rule name",
			},
			[]string{"rule"},
		),

		SituationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "situations_total",
				Help:      "Situations created or merged by type",
			},
			[]string{"situation_type", "outcome"},
		),

		SituationsExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "situations_expired_total",
				Help:      "Situations expired by the sweep",
			},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "notifications_total",
				Help:      "Notification deliveries by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// All recording helpers tolerate a nil receiver so callers can run
// without metrics wired, e.g. in tests.

// RecordCycle records a completed cycle and its duration.
func (m *Metrics) RecordCycle(status string, seconds float64) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDurationSeconds.Observe(seconds)
}

// RecordCollection records one collector's contribution to a cycle.
func (m *Metrics) RecordCollection(source string, count int) {
	if m == nil {
		return
	}
	m.SignalsCollected.WithLabelValues(source).Add(float64(count))
}

// RecordCollectorFailure records a failed collector by reason.
func (m *Metrics) RecordCollectorFailure(source, reason string) {
	if m == nil {
		return
	}
	m.CollectorFailures.WithLabelValues(source, reason).Inc()
}

// RecordRuleMatches records a rule's candidate count for one run.
func (m *Metrics) RecordRuleMatches(rule string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.RuleMatches.WithLabelValues(rule).Add(float64(count))
}

// RecordRuleFailure records an isolated rule evaluation failure.
func (m *Metrics) RecordRuleFailure(rule string) {
	if m == nil {
		return
	}
	m.RuleFailures.WithLabelValues(rule).Inc()
}

// RecordSituation records a manager outcome for a candidate.
func (m *Metrics) RecordSituation(situationType string, created bool) {
	if m == nil {
		return
	}
	outcome := "merged"
	if created {
		outcome = "created"
	}
	m.SituationsTotal.WithLabelValues(situationType, outcome).Inc()
}

// RecordExpired adds to the expiry counter.
func (m *Metrics) RecordExpired(count int) {
	if m == nil || count == 0 {
		return
	}
	m.SituationsExpired.Add(float64(count))
}

// RecordNotification records one notification outcome.
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(outcome).Inc()
}
