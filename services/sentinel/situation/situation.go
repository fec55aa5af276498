// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package situation defines the detected, user-facing unit of the sentinel
// pipeline and its lifecycle.
//
// # Description
//
// A Situation is produced by correlating one or more signals, carries
// suggested actions, and moves through an explicit state machine:
//
//	PENDING → ACTIONED | DISMISSED | SNOOZED | EXPIRED
//	SNOOZED → PENDING (once the snooze window elapses) | EXPIRED
//
// ACTIONED, DISMISSED, and EXPIRED are terminal. The fingerprint is the
// deduplication identity: at most one non-terminal situation exists per
// fingerprint at any time.
package situation

import (
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// =============================================================================
// Lifecycle
// =============================================================================

// Status is a situation's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActioned  Status = "ACTIONED"
	StatusDismissed Status = "DISMISSED"
	StatusSnoozed   Status = "SNOOZED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusActioned, StatusDismissed, StatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the lifecycle permits moving from s to
// next. Terminal states permit nothing; PENDING and SNOOZED permit every
// terminal state plus each other's half of the snooze round trip.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusActioned || next == StatusDismissed ||
			next == StatusSnoozed || next == StatusExpired
	case StatusSnoozed:
		return next == StatusActioned || next == StatusDismissed ||
			next == StatusPending || next == StatusExpired
	default:
		return false
	}
}

// =============================================================================
// Actions
// =============================================================================

// Urgency orders a situation's suggested actions.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
)

// Action is a recommendation attached to a situation. It has no lifecycle
// of its own; it lives and dies with its situation.
type Action struct {
	// Type names the action for the response-learning ledger
	// (e.g. "block_prep_time", "draft_reply", "review").
	Type string `json:"type"`

	// Description is the human-readable recommendation.
	Description string `json:"description"`

	// Urgency orders actions within a situation, most urgent first.
	Urgency Urgency `json:"urgency"`

	// ExecutionParameters carries the structured payload an external
	// executor needs to perform the action without further user input.
	// Nil when the action is advisory only.
	ExecutionParameters map[string]any `json:"execution_parameters,omitempty"`
}

// =============================================================================
// Candidate and Situation
// =============================================================================

// Candidate is a detector match that has not been persisted yet. The
// manager resolves it against existing situations by fingerprint.
type Candidate struct {
	// Type is the name of the rule that produced the candidate.
	Type string

	// Title is a short human-readable headline.
	Title string

	// Summary is a one-paragraph description of what was correlated.
	Summary string

	// Priority is the maximum priority among contributing signals.
	Priority signal.Priority

	// Signals is the contributing cluster, sorted by timestamp then ID.
	Signals []signal.Signal

	// Actions are the suggested actions, significance-descending.
	Actions []Action
}

// SignalRef is the persisted reference to a contributing signal. Key is
// the signal's stable identity, the value merge dedup runs on; SignalID
// is the per-collection UUID kept for audit-cache lookups.
type SignalRef struct {
	SignalID  string    `json:"signal_id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Key       string    `json:"key,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Situation is the persisted, user-facing detection.
type Situation struct {
	ID           string          `json:"id"`
	Type         string          `json:"situation_type"`
	Title        string          `json:"title"`
	Summary      string          `json:"summary"`
	Priority     signal.Priority `json:"priority"`
	Fingerprint  string          `json:"fingerprint"`
	Status       Status          `json:"status"`
	SignalRefs   []SignalRef     `json:"source_signal_refs"`
	Actions      []Action        `json:"suggested_actions"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	SnoozedUntil time.Time       `json:"snoozed_until,omitempty"`
	NotifiedAt   time.Time       `json:"notified_at,omitempty"`
	ActionedAt   time.Time       `json:"actioned_at,omitempty"`
	ActionTaken  string          `json:"action_taken,omitempty"`
}

// Refs converts a candidate's signals into persistable references.
func (c Candidate) Refs() []SignalRef {
	refs := make([]SignalRef, 0, len(c.Signals))
	for _, s := range c.Signals {
		refs = append(refs, SignalRef{
			SignalID:  s.ID,
			Type:      string(s.Type),
			Source:    s.Source,
			Key:       s.Identity(),
			Timestamp: s.Timestamp,
		})
	}
	return refs
}

// =============================================================================
// Responses
// =============================================================================

// Response is a user's reaction to a situation, recorded for learning.
type Response string

const (
	ResponseAccepted Response = "accepted"
	ResponseRejected Response = "rejected"
	ResponseIgnored  Response = "ignored"
)

// ResponseRecord is one append-only learning observation for a
// (situation_type, action_type) pair.
type ResponseRecord struct {
	SituationType string
	ActionType    string
	Response      Response
	RecordedAt    time.Time
}
