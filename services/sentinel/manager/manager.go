// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manager owns the situation lifecycle on top of the store.
//
// # Description
//
// The manager resolves detector candidates against persisted state
// (create or merge, keyed by fingerprint), applies user responses under
// the lifecycle state machine, sweeps expiry, and aggregates the
// response ledger into auto-execution eligibility. Writes for the same
// fingerprint are serialized through a keyed mutex; independent
// fingerprints proceed concurrently.
//
// # Assumptions
//
// The store's partial unique index backs the dedup invariant. The keyed
// mutex narrows the insert/merge race to the crash-recovery window; when
// two processes share one database the index still wins, and Upsert
// resolves the loser by re-reading and merging.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/store"
)

// ErrInvalidTransition is returned by Respond when the requested status
// change is not permitted by the lifecycle state machine.
var ErrInvalidTransition = errors.New("manager: invalid lifecycle transition")

// =============================================================================
// Configuration
// =============================================================================

// Config tunes lifecycle behavior.
type Config struct {
	// TTLs maps situation type to how long a new situation stays
	// actionable. Types not listed use DefaultTTL.
	TTLs map[string]time.Duration

	// DefaultTTL applies when a type has no entry in TTLs.
	DefaultTTL time.Duration

	// NotificationCooldown suppresses re-notification of a merged
	// situation that was already notified within the window.
	NotificationCooldown time.Duration

	// MinSamples is the observation floor below which no action type is
	// ever auto-execution eligible.
	MinSamples int

	// EligibilityThreshold is the minimum acceptance ratio for
	// auto-execution eligibility.
	EligibilityThreshold float64
}

// DefaultConfig returns production lifecycle settings.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:           24 * time.Hour,
		NotificationCooldown: 4 * time.Hour,
		MinSamples:           5,
		EligibilityThreshold: 0.8,
	}
}

// =============================================================================
// Manager
// =============================================================================

// Manager applies lifecycle rules to situations.
type Manager struct {
	store  *store.Store
	cfg    Config
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager over the given store.
func NewManager(st *store.Store, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}
	return &Manager{
		store:  st,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// fingerprintLock returns the mutex serializing writes for one
// fingerprint. Entries are never evicted; cardinality is bounded by the
// distinct fingerprints seen in one process lifetime.
func (m *Manager) fingerprintLock(fp string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[fp]
	if !ok {
		l = &sync.Mutex{}
		m.locks[fp] = l
	}
	return l
}

func (m *Manager) ttlFor(situationType string) time.Duration {
	if ttl, ok := m.cfg.TTLs[situationType]; ok && ttl > 0 {
		return ttl
	}
	return m.cfg.DefaultTTL
}

// =============================================================================
// Upsert
// =============================================================================

// UpsertResult reports how a candidate was resolved.
type UpsertResult struct {
	Situation *situation.Situation

	// Created is true when a new situation was inserted, false when the
	// candidate merged into an existing one.
	Created bool

	// ShouldNotify is true when the situation warrants an outbound
	// notification: always for new situations, and for merges only once
	// the notification cooldown has elapsed.
	ShouldNotify bool
}

// Upsert resolves a candidate against persisted state.
//
// # Description
//
// If no non-terminal situation holds the candidate's fingerprint, a new
// PENDING situation is created with the per-type TTL. Otherwise the
// candidate merges into the existing situation: signal refs are unioned,
// priority takes the maximum, title/summary/actions refresh from the
// newer detection, expiry extends, and created_at is preserved.
//
// # Inputs
//   - ctx: cancellation for store calls.
//   - c: a detector candidate carrying suggested actions.
//
// # Outputs
//   - UpsertResult describing the outcome.
//   - error when persistence fails.
func (m *Manager) Upsert(ctx context.Context, c situation.Candidate) (*UpsertResult, error) {
	fp := Fingerprint(c)
	lock := m.fingerprintLock(fp)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.GetActiveByFingerprint(ctx, fp)
	switch {
	case err == nil:
		return m.merge(ctx, existing, c)
	case errors.Is(err, store.ErrNotFound):
		res, err := m.create(ctx, fp, c)
		if errors.Is(err, store.ErrDuplicateFingerprint) {
			// Lost an insert race with another writer on the same
			// database. The winner's row is live; merge into it.
			m.logger.Warn("fingerprint insert race, merging into winner",
				"fingerprint", fp, "situation_type", c.Type)
			existing, err := m.store.GetActiveByFingerprint(ctx, fp)
			if err != nil {
				return nil, fmt.Errorf("manager: reread after race: %w", err)
			}
			return m.merge(ctx, existing, c)
		}
		return res, err
	default:
		return nil, fmt.Errorf("manager: lookup fingerprint: %w", err)
	}
}

func (m *Manager) create(ctx context.Context, fp string, c situation.Candidate) (*UpsertResult, error) {
	now := m.now().UTC()
	sit := &situation.Situation{
		ID:          uuid.NewString(),
		Type:        c.Type,
		Title:       c.Title,
		Summary:     c.Summary,
		Priority:    c.Priority,
		Fingerprint: fp,
		Status:      situation.StatusPending,
		SignalRefs:  c.Refs(),
		Actions:     c.Actions,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(m.ttlFor(c.Type)),
	}
	if err := m.store.Insert(ctx, sit); err != nil {
		return nil, err
	}
	m.logger.Info("situation created",
		"situation_id", sit.ID, "situation_type", sit.Type,
		"priority", sit.Priority.String(), "signals", len(sit.SignalRefs))
	return &UpsertResult{Situation: sit, Created: true, ShouldNotify: true}, nil
}

func (m *Manager) merge(ctx context.Context, existing *situation.Situation, c situation.Candidate) (*UpsertResult, error) {
	now := m.now().UTC()

	seen := make(map[string]bool, len(existing.SignalRefs))
	for _, r := range existing.SignalRefs {
		seen[refIdentity(r)] = true
	}
	for _, r := range c.Refs() {
		if !seen[refIdentity(r)] {
			existing.SignalRefs = append(existing.SignalRefs, r)
			seen[refIdentity(r)] = true
		}
	}

	existing.Priority = signal.MaxPriority(existing.Priority, c.Priority)
	existing.Title = c.Title
	existing.Summary = c.Summary
	if len(c.Actions) > 0 {
		existing.Actions = c.Actions
	}
	existing.UpdatedAt = now
	if expiry := now.Add(m.ttlFor(c.Type)); expiry.After(existing.ExpiresAt) {
		existing.ExpiresAt = expiry
	}

	if err := m.store.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("manager: merge update: %w", err)
	}

	notify := existing.Status == situation.StatusPending &&
		(existing.NotifiedAt.IsZero() || now.Sub(existing.NotifiedAt) >= m.cfg.NotificationCooldown)
	m.logger.Debug("situation merged",
		"situation_id", existing.ID, "situation_type", existing.Type,
		"signals", len(existing.SignalRefs), "notify", notify)
	return &UpsertResult{Situation: existing, Created: false, ShouldNotify: notify}, nil
}

// refIdentity dedups on the stable identity key; uuid signal IDs change
// between cycles for otherwise identical observations.
func refIdentity(r situation.SignalRef) string {
	if r.Key != "" {
		return r.Type + "/" + r.Key
	}
	return r.Type + "/" + r.SignalID
}

// MarkNotified records a successful outbound notification.
func (m *Manager) MarkNotified(ctx context.Context, id string) error {
	sit, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	sit.NotifiedAt = m.now().UTC()
	sit.UpdatedAt = sit.NotifiedAt
	return m.store.Update(ctx, sit)
}

// =============================================================================
// Respond
// =============================================================================

// RespondRequest is a user's decision about a situation.
type RespondRequest struct {
	// Status is the requested lifecycle state: ACTIONED, DISMISSED, or
	// SNOOZED.
	Status situation.Status

	// ActionType names the suggested action the user executed. Required
	// for ACTIONED; ignored otherwise.
	ActionType string

	// SnoozeFor sets the snooze window. Required for SNOOZED.
	SnoozeFor time.Duration
}

// Respond applies a user decision to a situation.
//
// # Description
//
// Validates the transition against the lifecycle state machine, persists
// the new state, and appends the learning observation: ACTIONED records
// an accepted response for the executed action, DISMISSED records a
// rejected response for the situation's primary suggested action.
// Snoozing records nothing; the situation has not been decided yet.
//
// # Outputs
//   - store.ErrNotFound when the ID is unknown.
//   - ErrInvalidTransition when the current state forbids the change.
func (m *Manager) Respond(ctx context.Context, id string, req RespondRequest) (*situation.Situation, error) {
	sit, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	lock := m.fingerprintLock(sit.Fingerprint)
	lock.Lock()
	defer lock.Unlock()

	// Reread under the lock; a sweep may have expired it meanwhile.
	sit, err = m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sit.Status.CanTransitionTo(req.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sit.Status, req.Status)
	}

	now := m.now().UTC()
	sit.Status = req.Status
	sit.UpdatedAt = now

	var record *situation.ResponseRecord
	switch req.Status {
	case situation.StatusActioned:
		action := req.ActionType
		if action == "" {
			action = primaryAction(sit)
		}
		sit.ActionTaken = action
		sit.ActionedAt = now
		record = &situation.ResponseRecord{
			SituationType: sit.Type,
			ActionType:    action,
			Response:      situation.ResponseAccepted,
			RecordedAt:    now,
		}
	case situation.StatusDismissed:
		record = &situation.ResponseRecord{
			SituationType: sit.Type,
			ActionType:    primaryAction(sit),
			Response:      situation.ResponseRejected,
			RecordedAt:    now,
		}
	case situation.StatusSnoozed:
		if req.SnoozeFor <= 0 {
			return nil, fmt.Errorf("manager: snooze duration must be positive")
		}
		sit.SnoozedUntil = now.Add(req.SnoozeFor)
	}

	if err := m.store.Update(ctx, sit); err != nil {
		return nil, err
	}
	if record != nil {
		if err := m.store.AppendResponse(ctx, *record); err != nil {
			// The lifecycle change already committed; the lost
			// observation only slows learning down.
			m.logger.Error("append response record failed",
				"situation_id", sit.ID, "error", err)
		}
	}

	m.logger.Info("situation responded",
		"situation_id", sit.ID, "status", string(sit.Status), "action", sit.ActionTaken)
	return sit, nil
}

func primaryAction(sit *situation.Situation) string {
	if len(sit.Actions) > 0 {
		return sit.Actions[0].Type
	}
	return "review"
}

// =============================================================================
// Sweep
// =============================================================================

// SweepReport summarizes one expiry sweep.
type SweepReport struct {
	Woken   []string
	Expired []string
}

// SweepExpired wakes elapsed snoozes back to PENDING, expires everything
// past its TTL, and records an ignored observation for each expiry.
// Idempotent: a second sweep at the same instant changes nothing.
func (m *Manager) SweepExpired(ctx context.Context) (*SweepReport, error) {
	now := m.now().UTC()

	woken, err := m.store.WakeSnoozed(ctx, now)
	if err != nil {
		return nil, err
	}
	expired, err := m.store.SweepExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	for _, id := range expired {
		sit, err := m.store.Get(ctx, id)
		if err != nil {
			m.logger.Error("load expired situation failed", "situation_id", id, "error", err)
			continue
		}
		rec := situation.ResponseRecord{
			SituationType: sit.Type,
			ActionType:    primaryAction(sit),
			Response:      situation.ResponseIgnored,
			RecordedAt:    now,
		}
		if err := m.store.AppendResponse(ctx, rec); err != nil {
			m.logger.Error("append ignored record failed", "situation_id", id, "error", err)
		}
	}

	if len(woken) > 0 || len(expired) > 0 {
		m.logger.Info("expiry sweep", "woken", len(woken), "expired", len(expired))
	}
	return &SweepReport{Woken: woken, Expired: expired}, nil
}

// =============================================================================
// Queries
// =============================================================================

// ListPending returns PENDING situations at or above minPriority.
func (m *Manager) ListPending(ctx context.Context, minPriority signal.Priority) ([]*situation.Situation, error) {
	return m.store.ListPending(ctx, minPriority)
}

// Digest returns situations active since the given time, ordered by
// priority then recency.
func (m *Manager) Digest(ctx context.Context, since time.Time) ([]*situation.Situation, error) {
	sits, err := m.store.Digest(ctx, since)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sits, func(i, j int) bool {
		if sits[i].Priority != sits[j].Priority {
			return sits[i].Priority > sits[j].Priority
		}
		return sits[i].UpdatedAt.After(sits[j].UpdatedAt)
	})
	return sits, nil
}

// Stats aggregates activity over the trailing period. A non-positive
// period means all time.
func (m *Manager) Stats(ctx context.Context, period time.Duration) (*store.Stats, error) {
	var since time.Time
	if period > 0 {
		since = m.now().UTC().Add(-period)
	}
	return m.store.CollectStats(ctx, since)
}

// Get returns one situation by ID.
func (m *Manager) Get(ctx context.Context, id string) (*situation.Situation, error) {
	return m.store.Get(ctx, id)
}

// =============================================================================
// Learning
// =============================================================================

// AutoExecutionEligible reports whether an action type has earned
// execution without per-instance confirmation.
//
// # Description
//
// Requires at least MinSamples observations for the pair and an
// acceptance ratio at or above EligibilityThreshold. Monotone in the
// useful sense: once eligible, additional accepted observations can
// never revoke eligibility.
//
// A non-positive MinSamples fails closed: no action type is ever
// eligible. Service configuration validates MinSamples >= 1, so this
// only arises when the manager is constructed directly with a zero
// Config, and auto-execution is the wrong thing to enable silently.
func (m *Manager) AutoExecutionEligible(ctx context.Context, situationType, actionType string) (bool, error) {
	accepted, total, err := m.store.ResponseCounts(ctx, situationType, actionType)
	if err != nil {
		return false, err
	}
	if m.cfg.MinSamples <= 0 || total < m.cfg.MinSamples {
		return false, nil
	}
	return float64(accepted)/float64(total) >= m.cfg.EligibilityThreshold, nil
}
