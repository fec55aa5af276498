// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package signal defines the atomic observation type produced by every
// collector and consumed by the situation detector.
//
// # Description
//
// A Signal is one immutable, timestamped observation from a single domain
// (calendar, email, meetings, and so on). Signals are never persisted as
// first-class records; they flow through a single pipeline cycle and are
// optionally cached short-term for audit (see the audit package).
//
// Each signal carries a strongly-typed Payload variant rather than an open
// key/value map. The payload type is the contract between the collector
// that emits a signal type and the detector rules that consume it: a
// collector cannot silently drop or rename a field a rule requires, because
// the field is a struct member and completeness is checked via
// Payload.Complete().
//
// # Thread Safety
//
// Signals are immutable value types and safe to share across goroutines.
package signal

import (
	"context"
	"strings"
	"time"
)

// =============================================================================
// Priority
// =============================================================================

// Priority is the ordinal severity of a signal or situation.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase name used in APIs and persistence.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority converts a lowercase priority name to a Priority.
// Unknown names map to PriorityLow, which keeps API filters permissive.
func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// MarshalJSON encodes the priority as its lowercase name.
func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON decodes a lowercase priority name.
func (p *Priority) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	*p = ParsePriority(s)
	return nil
}

// MaxPriority returns the higher of two priorities.
func MaxPriority(a, b Priority) Priority {
	if a > b {
		return a
	}
	return b
}

// =============================================================================
// Signal Types
// =============================================================================

// Type identifies the kind of observation a signal carries.
//
// The set of types is closed: every type has exactly one payload struct in
// this package, and the detector's rule table refers to signals by these
// names. Adding a type means adding a payload variant alongside it.
type Type string

const (
	TypeEventUpcoming24h       Type = "event_upcoming_24h"
	TypePrepTimeNeeded         Type = "prep_time_needed"
	TypeEventConflict          Type = "event_conflict"
	TypeEmailPriorityHigh      Type = "email_priority_high"
	TypeEmailAwaitingReply     Type = "email_awaiting_reply"
	TypeMeetingProcessed       Type = "meeting_processed"
	TypeActionItemsCreated     Type = "action_items_created"
	TypeConversationFollowup   Type = "conversation_followup_due"
	TypeTrendSpike             Type = "trend_spike"
	TypeWeatherAlert           Type = "weather_alert"
	TypeKnowledgeMatch         Type = "knowledge_match"
	TypeTaskOverdue            Type = "task_overdue"
	TypeTaskDueSoon            Type = "task_due_soon"
	TypeSocialMention          Type = "social_mention"
)

// Known reports whether t is one of the closed set of signal types.
func Known(t Type) bool {
	switch t {
	case TypeEventUpcoming24h, TypePrepTimeNeeded, TypeEventConflict,
		TypeEmailPriorityHigh, TypeEmailAwaitingReply,
		TypeMeetingProcessed, TypeActionItemsCreated,
		TypeConversationFollowup, TypeTrendSpike, TypeWeatherAlert,
		TypeKnowledgeMatch, TypeTaskOverdue, TypeTaskDueSoon,
		TypeSocialMention:
		return true
	default:
		return false
	}
}

// =============================================================================
// Signal
// =============================================================================

// Signal is one immutable, timestamped observation from a domain collector.
//
// # Fields
//
//   - ID: Unique identifier assigned by the collector (uuid).
//   - Type: The kind of observation; determines the Payload variant.
//   - Source: Name of the collector that produced the signal.
//   - Priority: Ordinal severity assigned by the collector.
//   - Timestamp: When the underlying event occurred, not when it was
//     collected.
//   - Payload: The typed data variant for this signal type.
type Signal struct {
	ID        string
	Type      Type
	Source    string
	Priority  Priority
	Timestamp time.Time
	Payload   Payload
}

// Complete reports whether the signal carries a payload of the right
// variant with all contract-required fields populated. Detector rules
// must treat an incomplete signal as absent, never as an error.
func (s Signal) Complete() bool {
	return s.Payload != nil && s.Payload.Kind() == s.Type && s.Payload.Complete()
}

// CorrelationKey returns the stable identity value used to group this
// signal with related ones (an event ID, meeting ID, keyword, ...).
// Empty when the signal type has no natural identity; such signals are
// correlated by time proximity alone.
func (s Signal) CorrelationKey() string {
	if s.Payload == nil {
		return ""
	}
	return s.Payload.CorrelationKey()
}

// Identity returns the stable identity of the observation itself,
// surviving re-collection across cycles (signal IDs do not: every cycle
// mints fresh UUIDs). Falls back to the signal ID when no payload is
// attached.
func (s Signal) Identity() string {
	if s.Payload == nil {
		return s.ID
	}
	return s.Payload.Identity()
}

// =============================================================================
// Collection Window
// =============================================================================

// Window bounds how far back and forward a collector looks on one cycle.
//
// A window is expressed relative to Now so that collectors remain
// deterministic under an injected clock in tests.
type Window struct {
	// Now is the reference instant for the cycle.
	Now time.Time

	// LookBack bounds how far into the past the collector queries.
	LookBack time.Duration

	// LookAhead bounds how far into the future the collector queries.
	LookAhead time.Duration
}

// Start returns the earliest instant inside the window.
func (w Window) Start() time.Time { return w.Now.Add(-w.LookBack) }

// End returns the latest instant inside the window.
func (w Window) End() time.Time { return w.Now.Add(w.LookAhead) }

// Contains reports whether t lies inside the window, inclusive of bounds.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start()) && !t.After(w.End())
}

// =============================================================================
// Collector Contract
// =============================================================================

// Collector is a read-only producer of signals for one domain.
//
// # Description
//
// Implementations query their backing store for the given window and map
// domain records to typed signals. A collector must:
//   - return an empty slice (not an error) when its domain has no data,
//   - populate every payload field a detector rule requires,
//   - perform no writes against its backing store,
//   - honor ctx cancellation; the cycle runner imposes a per-collector
//     timeout and treats overruns as CollectorTimeout.
type Collector interface {
	// Name identifies the collector in reports, logs, and metrics.
	Name() string

	// Collect returns the signals observed for the window.
	Collect(ctx context.Context, w Window) ([]Signal, error)
}
