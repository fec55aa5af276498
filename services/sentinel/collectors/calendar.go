// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collectors contains the nine domain collectors that feed the
// sentinel pipeline.
//
// # Description
//
// Each collector implements signal.Collector against a narrow, read-only
// source interface. The source interfaces are injected at construction so
// tests can run every collector against in-memory fakes, and so the concrete
// store behind a domain (CalDAV server, IMAP mailbox, transcription service,
// weather API, ...) stays outside the core.
//
// Collectors share three rules:
//   - an empty domain yields an empty slice, never an error;
//   - every emitted payload populates the fields the detector contract
//     requires for its signal type;
//   - collectors never write to their backing store.
package collectors

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// =============================================================================
// Calendar Collector
// =============================================================================

// CalendarEvent is the plain record the calendar source returns.
type CalendarEvent struct {
	ID          string
	Title       string
	StartsAt    time.Time
	EndsAt      time.Time
	Location    string
	Outdoor     bool
	PrepMinutes int
}

// CalendarSource is the read-only query boundary to the calendar store.
type CalendarSource interface {
	// EventsBetween returns events starting inside [start, end].
	EventsBetween(ctx context.Context, start, end time.Time) ([]CalendarEvent, error)
}

// Calendar emits event_upcoming_24h, prep_time_needed, and event_conflict
// signals for events inside the cycle's look-ahead window.
type Calendar struct {
	source CalendarSource
}

// NewCalendar creates a calendar collector over the given source.
func NewCalendar(source CalendarSource) *Calendar {
	return &Calendar{source: source}
}

// Name implements signal.Collector.
func (c *Calendar) Name() string { return "calendar" }

// Collect implements signal.Collector.
//
// # Description
//
// Emits one event_upcoming_24h signal per upcoming event, one
// prep_time_needed signal per event that declares preparation minutes, and
// one event_conflict signal per overlapping event pair. Events that already
// started are skipped; the situation that could act on them has passed.
//
// Priority scales with how soon the event starts: under 4 hours is high,
// under 24 hours medium, otherwise low.
func (c *Calendar) Collect(ctx context.Context, w signal.Window) ([]signal.Signal, error) {
	events, err := c.source.EventsBetween(ctx, w.Now, w.End())
	if err != nil {
		return nil, fmt.Errorf("calendar: query events: %w", err)
	}

	var out []signal.Signal
	for _, ev := range events {
		if ev.ID == "" || !ev.StartsAt.After(w.Now) {
			continue
		}
		hoursUntil := ev.StartsAt.Sub(w.Now).Hours()

		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeEventUpcoming24h,
			Source:    c.Name(),
			Priority:  upcomingPriority(hoursUntil),
			Timestamp: ev.StartsAt,
			Payload: signal.EventUpcoming{
				EventID:    ev.ID,
				Title:      ev.Title,
				StartsAt:   ev.StartsAt,
				HoursUntil: hoursUntil,
				Location:   ev.Location,
				Outdoor:    ev.Outdoor,
			},
		})

		if ev.PrepMinutes > 0 {
			out = append(out, signal.Signal{
				ID:        uuid.NewString(),
				Type:      signal.TypePrepTimeNeeded,
				Source:    c.Name(),
				Priority:  signal.PriorityMedium,
				Timestamp: ev.StartsAt,
				Payload: signal.PrepTimeNeeded{
					EventID:     ev.ID,
					PrepMinutes: ev.PrepMinutes,
				},
			})
		}
	}

	out = append(out, c.conflictSignals(w, events)...)
	return out, nil
}

// conflictSignals scans for pairwise overlaps among upcoming events.
// One signal is emitted per conflicting pair, keyed on the earlier event.
func (c *Calendar) conflictSignals(w signal.Window, events []CalendarEvent) []signal.Signal {
	var out []signal.Signal
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, b := events[i], events[j]
			if a.ID == "" || b.ID == "" || !a.StartsAt.After(w.Now) || !b.StartsAt.After(w.Now) {
				continue
			}
			if b.StartsAt.Before(a.StartsAt) {
				a, b = b, a
			}
			overlap := a.EndsAt.Sub(b.StartsAt)
			if overlap <= 0 {
				continue
			}
			out = append(out, signal.Signal{
				ID:        uuid.NewString(),
				Type:      signal.TypeEventConflict,
				Source:    c.Name(),
				Priority:  signal.PriorityHigh,
				Timestamp: b.StartsAt,
				Payload: signal.EventConflict{
					EventID:        a.ID,
					OtherEventID:   b.ID,
					OverlapMinutes: int(overlap.Minutes()),
				},
			})
		}
	}
	return out
}

func upcomingPriority(hoursUntil float64) signal.Priority {
	switch {
	case hoursUntil <= 4:
		return signal.PriorityHigh
	case hoursUntil <= 24:
		return signal.PriorityMedium
	default:
		return signal.PriorityLow
	}
}
