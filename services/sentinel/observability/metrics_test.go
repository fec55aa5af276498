// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics creates a Metrics instance on a private registry so
// tests never collide with each other.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestRecordCycle(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCycle("success", 1.5)
	m.RecordCycle("success", 0.5)
	m.RecordCycle("error", 0.1)

	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("success cycles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error cycles = %v, want 1", got)
	}
}

func TestRecordCollection(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCollection("calendar", 3)
	m.RecordCollection("calendar", 2)
	m.RecordCollectorFailure("email", "timeout")

	if got := testutil.ToFloat64(m.SignalsCollected.WithLabelValues("calendar")); got != 5 {
		t.Errorf("calendar signals = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.CollectorFailures.WithLabelValues("email", "timeout")); got != 1 {
		t.Errorf("email timeouts = %v, want 1", got)
	}
}

func TestRecordRuleAndSituation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRuleMatches("deadline", 2)
	m.RecordRuleMatches("deadline", 0) // zero matches add nothing
	m.RecordSituation("deadline", true)
	m.RecordSituation("deadline", false)

	if got := testutil.ToFloat64(m.RuleMatches.WithLabelValues("deadline")); got != 2 {
		t.Errorf("rule matches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SituationsTotal.WithLabelValues("deadline", "created")); got != 1 {
		t.Errorf("created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SituationsTotal.WithLabelValues("deadline", "merged")); got != 1 {
		t.Errorf("merged = %v, want 1", got)
	}
}

func TestRecordExpiredAndNotifications(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordExpired(3)
	m.RecordExpired(0)
	m.RecordNotification("delivered")
	m.RecordNotification("suppressed")

	if got := testutil.ToFloat64(m.SituationsExpired); got != 3 {
		t.Errorf("expired = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("delivered")); got != 1 {
		t.Errorf("delivered = %v, want 1", got)
	}
}

func TestNewMetricsIsolatedPerRegistry(t *testing.T) {
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.RecordCycle("success", 1)

	if got := testutil.ToFloat64(b.CyclesTotal.WithLabelValues("success")); got != 0 {
		t.Errorf("registries leaked counts across instances: %v", got)
	}
}
