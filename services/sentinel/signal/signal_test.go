// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package signal

import (
	"testing"
	"time"
)

func TestPriorityOrdering(t *testing.T) {
	if !(PriorityLow < PriorityMedium && PriorityMedium < PriorityHigh && PriorityHigh < PriorityCritical) {
		t.Fatal("priority ordinals are not ordered low < medium < high < critical")
	}
	if got := MaxPriority(PriorityMedium, PriorityCritical); got != PriorityCritical {
		t.Errorf("MaxPriority(medium, critical) = %v, want critical", got)
	}
}

func TestParsePriorityRoundTrip(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if got := ParsePriority(p.String()); got != p {
			t.Errorf("ParsePriority(%q) = %v, want %v", p.String(), got, p)
		}
	}
	if got := ParsePriority("bogus"); got != PriorityLow {
		t.Errorf("ParsePriority(bogus) = %v, want low", got)
	}
}

func TestWindowContains(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := Window{Now: now, LookBack: 24 * time.Hour, LookAhead: 48 * time.Hour}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"now", now, true},
		{"start boundary", now.Add(-24 * time.Hour), true},
		{"end boundary", now.Add(48 * time.Hour), true},
		{"before start", now.Add(-25 * time.Hour), false},
		{"after end", now.Add(49 * time.Hour), false},
	}
	for _, tt := range tests {
		if got := w.Contains(tt.t); got != tt.want {
			t.Errorf("%s: Contains(%v) = %v, want %v", tt.name, tt.t, got, tt.want)
		}
	}
}

func TestSignalCompleteRequiresMatchingVariant(t *testing.T) {
	s := Signal{
		ID:        "sig-1",
		Type:      TypeEventUpcoming24h,
		Source:    "calendar",
		Priority:  PriorityHigh,
		Timestamp: time.Now(),
		Payload:   EventUpcoming{EventID: "E1", HoursUntil: 20},
	}
	if !s.Complete() {
		t.Error("signal with populated matching payload should be complete")
	}

	// Payload variant mismatched against the type tag.
	s.Payload = PrepTimeNeeded{EventID: "E1"}
	if s.Complete() {
		t.Error("signal with mismatched payload variant should not be complete")
	}

	// Required field missing inside the payload.
	s.Type = TypeEventUpcoming24h
	s.Payload = EventUpcoming{Title: "standup"}
	if s.Complete() {
		t.Error("signal missing required payload fields should not be complete")
	}

	s.Payload = nil
	if s.Complete() {
		t.Error("signal with nil payload should not be complete")
	}
}

func TestCorrelationKeys(t *testing.T) {
	tests := []struct {
		payload Payload
		want    string
	}{
		{EventUpcoming{EventID: "E1", HoursUntil: 2}, "E1"},
		{PrepTimeNeeded{EventID: "E1"}, "E1"},
		{MeetingProcessed{MeetingID: "M7"}, "M7"},
		{TrendSpike{Keyword: "golang", Score: 91}, "golang"},
		{EmailPriorityHigh{MessageID: "msg-1"}, ""},
		{WeatherAlert{AlertID: "W1", Condition: "storm"}, ""},
		{SocialMention{PostID: "p1", Platform: "mastodon"}, ""},
	}
	for _, tt := range tests {
		if got := tt.payload.CorrelationKey(); got != tt.want {
			t.Errorf("%T.CorrelationKey() = %q, want %q", tt.payload, got, tt.want)
		}
	}
}
