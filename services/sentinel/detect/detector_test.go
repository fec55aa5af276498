// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sig(id string, t signal.Type, prio signal.Priority, ts time.Time, payload signal.Payload) signal.Signal {
	return signal.Signal{
		ID:        id,
		Type:      t,
		Source:    "test",
		Priority:  prio,
		Timestamp: ts,
		Payload:   payload,
	}
}

func candidatesFor(t *testing.T, result Result, situationType string) []int {
	t.Helper()
	var idxs []int
	for i, c := range result.Candidates {
		if c.Type == situationType {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func TestDeadlineRuleCorrelatesOnEventID(t *testing.T) {
	d := NewDetector(DefaultRegistry())

	signals := []signal.Signal{
		sig("s1", signal.TypeEventUpcoming24h, signal.PriorityMedium, base,
			signal.EventUpcoming{EventID: "E1", Title: "talk", StartsAt: base, HoursUntil: 20}),
		sig("s2", signal.TypePrepTimeNeeded, signal.PriorityMedium, base,
			signal.PrepTimeNeeded{EventID: "E1", PrepMinutes: 90}),
	}

	result := d.Detect(signals)
	idxs := candidatesFor(t, result, "deadline")
	if len(idxs) != 1 {
		t.Fatalf("expected exactly 1 deadline candidate, got %d", len(idxs))
	}
	c := result.Candidates[idxs[0]]
	if len(c.Signals) != 2 {
		t.Errorf("expected both signals in cluster, got %d", len(c.Signals))
	}
	if c.Priority != signal.PriorityMedium {
		t.Errorf("candidate priority = %v, want medium", c.Priority)
	}
}

func TestRuleDoesNotFireOnIncompleteRequiredSignal(t *testing.T) {
	d := NewDetector(DefaultRegistry())

	// prep_time_needed present but missing its required event_id: the rule
	// must treat it as absent, not as an error.
	signals := []signal.Signal{
		sig("s1", signal.TypeEventUpcoming24h, signal.PriorityMedium, base,
			signal.EventUpcoming{EventID: "E1", Title: "talk", StartsAt: base, HoursUntil: 20}),
		sig("s2", signal.TypePrepTimeNeeded, signal.PriorityMedium, base,
			signal.PrepTimeNeeded{PrepMinutes: 90}),
	}

	result := d.Detect(signals)
	if idxs := candidatesFor(t, result, "deadline"); len(idxs) != 0 {
		t.Errorf("deadline fired on incomplete required signal")
	}
	for _, outcome := range result.Rules {
		if outcome.Err != "" {
			t.Errorf("rule %s reported error for incomplete signal: %s", outcome.Rule, outcome.Err)
		}
	}
}

func TestDifferentEventIDsDoNotCorrelate(t *testing.T) {
	d := NewDetector(DefaultRegistry())

	signals := []signal.Signal{
		sig("s1", signal.TypeEventUpcoming24h, signal.PriorityMedium, base,
			signal.EventUpcoming{EventID: "E1", Title: "talk", StartsAt: base, HoursUntil: 20}),
		sig("s2", signal.TypePrepTimeNeeded, signal.PriorityMedium, base,
			signal.PrepTimeNeeded{EventID: "E2", PrepMinutes: 30}),
	}

	result := d.Detect(signals)
	if idxs := candidatesFor(t, result, "deadline"); len(idxs) != 0 {
		t.Errorf("deadline correlated signals for unrelated events")
	}
}

func TestCorrelationWindowExcludesDistantSignals(t *testing.T) {
	reg, err := LoadRegistry([]byte(`
rules:
  - name: meeting_followup
    title: Meeting follow-up ready
    required: [meeting_processed, action_items_created]
    window: 1h
    ttl: 24h
`))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	d := NewDetector(reg)

	signals := []signal.Signal{
		sig("s1", signal.TypeMeetingProcessed, signal.PriorityMedium, base,
			signal.MeetingProcessed{MeetingID: "M1", Title: "planning", ProcessedAt: base}),
		sig("s2", signal.TypeActionItemsCreated, signal.PriorityMedium, base.Add(3*time.Hour),
			signal.ActionItemsCreated{MeetingID: "M1", Count: 2}),
	}

	result := d.Detect(signals)
	if idxs := candidatesFor(t, result, "meeting_followup"); len(idxs) != 0 {
		t.Errorf("rule correlated signals outside its window")
	}
}

func TestKeylessSignalAttachesWithinClusterSpan(t *testing.T) {
	reg, err := LoadRegistry([]byte(`
rules:
  - name: storm_check
    title: Storm check
    required: [event_upcoming_24h, weather_alert]
    window: 1h
    ttl: 24h
`))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	d := NewDetector(reg)

	event := sig("s1", signal.TypeEventUpcoming24h, signal.PriorityMedium, base,
		signal.EventUpcoming{EventID: "E1", Title: "talk", StartsAt: base, HoursUntil: 20})

	near := []signal.Signal{
		event,
		sig("s2", signal.TypeWeatherAlert, signal.PriorityHigh, base.Add(30*time.Minute),
			signal.WeatherAlert{AlertID: "W1", Condition: "thunderstorm", Severity: "severe"}),
	}
	idxs := candidatesFor(t, d.Detect(near), "storm_check")
	if len(idxs) != 1 {
		t.Fatalf("expected keyless alert within the cluster span to attach, got %d candidates", len(idxs))
	}
	if got := len(d.Detect(near).Candidates[idxs[0]].Signals); got != 2 {
		t.Errorf("expected 2 signals in cluster, got %d", got)
	}

	far := []signal.Signal{
		event,
		sig("s2", signal.TypeWeatherAlert, signal.PriorityHigh, base.Add(3*time.Hour),
			signal.WeatherAlert{AlertID: "W1", Condition: "thunderstorm", Severity: "severe"}),
	}
	if idxs := candidatesFor(t, d.Detect(far), "storm_check"); len(idxs) != 0 {
		t.Errorf("keyless alert outside the cluster span attached anyway")
	}
}

func TestInboxPressureRequiresMinimumCount(t *testing.T) {
	d := NewDetector(DefaultRegistry())

	two := []signal.Signal{
		sig("s1", signal.TypeEmailPriorityHigh, signal.PriorityHigh, base,
			signal.EmailPriorityHigh{MessageID: "m1"}),
		sig("s2", signal.TypeEmailPriorityHigh, signal.PriorityHigh, base.Add(time.Hour),
			signal.EmailPriorityHigh{MessageID: "m2"}),
	}
	if idxs := candidatesFor(t, d.Detect(two), "inbox_pressure"); len(idxs) != 0 {
		t.Errorf("inbox_pressure fired below its minimum count")
	}

	three := append(two,
		sig("s3", signal.TypeEmailPriorityHigh, signal.PriorityHigh, base.Add(2*time.Hour),
			signal.EmailPriorityHigh{MessageID: "m3"}))
	idxs := candidatesFor(t, d.Detect(three), "inbox_pressure")
	if len(idxs) != 1 {
		t.Fatalf("expected 1 inbox_pressure candidate, got %d", len(idxs))
	}
	if got := len(d.Detect(three).Candidates[idxs[0]].Signals); got != 3 {
		t.Errorf("expected 3 signals in cluster, got %d", got)
	}
}

func TestWeatherDisruptionRequiresOutdoorEvent(t *testing.T) {
	d := NewDetector(DefaultRegistry())

	alert := sig("s1", signal.TypeWeatherAlert, signal.PriorityHigh, base.Add(6*time.Hour),
		signal.WeatherAlert{AlertID: "W1", Condition: "thunderstorm", Severity: "severe"})

	indoor := []signal.Signal{
		alert,
		sig("s2", signal.TypeEventUpcoming24h, signal.PriorityMedium, base.Add(7*time.Hour),
			signal.EventUpcoming{EventID: "E1", Title: "board meeting", StartsAt: base.Add(7 * time.Hour), HoursUntil: 7}),
	}
	if idxs := candidatesFor(t, d.Detect(indoor), "weather_disruption"); len(idxs) != 0 {
		t.Errorf("weather_disruption fired for an indoor event")
	}

	outdoor := []signal.Signal{
		alert,
		sig("s2", signal.TypeEventUpcoming24h, signal.PriorityMedium, base.Add(7*time.Hour),
			signal.EventUpcoming{EventID: "E1", Title: "garden party", StartsAt: base.Add(7 * time.Hour), HoursUntil: 7, Outdoor: true}),
	}
	result := d.Detect(outdoor)
	idxs := candidatesFor(t, result, "weather_disruption")
	if len(idxs) != 1 {
		t.Fatalf("expected 1 weather_disruption candidate, got %d", len(idxs))
	}
	if got := result.Candidates[idxs[0]].Priority; got != signal.PriorityHigh {
		t.Errorf("candidate priority = %v, want high (max of contributors)", got)
	}
}

func TestSharedSignalMergesClusters(t *testing.T) {
	d := NewDetector(DefaultRegistry())

	// One weather alert inside the window of two outdoor events: the alert
	// would land in both keyed clusters, so the clusters must merge into a
	// single candidate.
	signals := []signal.Signal{
		sig("s1", signal.TypeWeatherAlert, signal.PriorityHigh, base.Add(5*time.Hour),
			signal.WeatherAlert{AlertID: "W1", Condition: "storm", Severity: "severe"}),
		sig("s2", signal.TypeEventUpcoming24h, signal.PriorityMedium, base.Add(6*time.Hour),
			signal.EventUpcoming{EventID: "E1", Title: "hike", StartsAt: base.Add(6 * time.Hour), HoursUntil: 6, Outdoor: true}),
		sig("s3", signal.TypeEventUpcoming24h, signal.PriorityMedium, base.Add(8*time.Hour),
			signal.EventUpcoming{EventID: "E2", Title: "picnic", StartsAt: base.Add(8 * time.Hour), HoursUntil: 8, Outdoor: true}),
	}

	result := d.Detect(signals)
	idxs := candidatesFor(t, result, "weather_disruption")
	if len(idxs) != 1 {
		t.Fatalf("expected clusters sharing a signal to merge into 1 candidate, got %d", len(idxs))
	}
	if got := len(result.Candidates[idxs[0]].Signals); got != 3 {
		t.Errorf("merged cluster should hold all 3 signals, got %d", got)
	}
}

func TestRulePanicIsIsolated(t *testing.T) {
	reg, err := NewRegistry([]Rule{
		{
			Name:     "broken",
			Title:    "broken rule",
			Required: []signal.Type{signal.TypeTaskOverdue},
			Window:   time.Hour,
			TTL:      time.Hour,
			Refine:   func([]signal.Signal) bool { panic("boom") },
		},
		{
			Name:     "healthy",
			Title:    "healthy rule",
			Required: []signal.Type{signal.TypeTaskOverdue},
			Window:   time.Hour,
			TTL:      time.Hour,
		},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	d := NewDetector(reg)
	result := d.Detect([]signal.Signal{
		sig("s1", signal.TypeTaskOverdue, signal.PriorityHigh, base,
			signal.TaskOverdue{TaskID: "K1", Title: "pay invoice", DueAt: base.Add(-48 * time.Hour), DaysOverdue: 2}),
	})

	if idxs := candidatesFor(t, result, "healthy"); len(idxs) != 1 {
		t.Errorf("healthy rule should still fire after a sibling panicked")
	}
	var brokenOutcome *RuleOutcome
	for i := range result.Rules {
		if result.Rules[i].Rule == "broken" {
			brokenOutcome = &result.Rules[i]
		}
	}
	if brokenOutcome == nil || brokenOutcome.Err == "" {
		t.Errorf("broken rule's failure should be reported in the outcome list")
	}
}

func TestDefaultRegistryLoads(t *testing.T) {
	reg := DefaultRegistry()
	if len(reg.Rules()) != 9 {
		t.Errorf("expected 9 default rules, got %d", len(reg.Rules()))
	}
	ttls := reg.TTLs()
	if ttls["deadline"] != 24*time.Hour {
		t.Errorf("deadline ttl = %v, want 24h", ttls["deadline"])
	}
}

func TestLoadRegistryRejectsUnknownSignalType(t *testing.T) {
	_, err := LoadRegistry([]byte(`
rules:
  - name: bogus
    title: Bogus
    required: [no_such_signal]
    window: 1h
    ttl: 1h
`))
	if err == nil {
		t.Fatal("expected error for unknown signal type")
	}
}
