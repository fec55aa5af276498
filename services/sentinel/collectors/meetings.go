// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collectors

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// =============================================================================
// Meetings Collector
// =============================================================================

// Meeting is a processed meeting record from the transcription service.
type Meeting struct {
	ID          string
	Title       string
	ProcessedAt time.Time
	ActionItems []MeetingActionItem
}

// MeetingActionItem is one extracted action item.
type MeetingActionItem struct {
	Description string
	Assignee    string
}

// MeetingSource is the read-only query boundary to the meeting store.
type MeetingSource interface {
	// ProcessedSince returns meetings whose transcripts finished processing
	// at or after the given instant.
	ProcessedSince(ctx context.Context, since time.Time) ([]Meeting, error)
}

// Meetings emits meeting_processed and action_items_created signals.
type Meetings struct {
	source MeetingSource
}

// NewMeetings creates a meetings collector over the given source.
func NewMeetings(source MeetingSource) *Meetings {
	return &Meetings{source: source}
}

// Name implements signal.Collector.
func (m *Meetings) Name() string { return "meetings" }

// Collect implements signal.Collector.
//
// A meeting with extracted action items produces both signal types with the
// same meeting_id so the meeting_followup rule can correlate them.
func (m *Meetings) Collect(ctx context.Context, w signal.Window) ([]signal.Signal, error) {
	meetings, err := m.source.ProcessedSince(ctx, w.Start())
	if err != nil {
		return nil, fmt.Errorf("meetings: query processed: %w", err)
	}

	var out []signal.Signal
	for _, mt := range meetings {
		if mt.ID == "" {
			continue
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeMeetingProcessed,
			Source:    m.Name(),
			Priority:  signal.PriorityMedium,
			Timestamp: mt.ProcessedAt,
			Payload: signal.MeetingProcessed{
				MeetingID:   mt.ID,
				Title:       mt.Title,
				ProcessedAt: mt.ProcessedAt,
			},
		})

		if len(mt.ActionItems) == 0 {
			continue
		}
		assignees := make([]string, 0, len(mt.ActionItems))
		for _, item := range mt.ActionItems {
			if item.Assignee != "" {
				assignees = append(assignees, item.Assignee)
			}
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeActionItemsCreated,
			Source:    m.Name(),
			Priority:  signal.PriorityMedium,
			Timestamp: mt.ProcessedAt,
			Payload: signal.ActionItemsCreated{
				MeetingID: mt.ID,
				Count:     len(mt.ActionItems),
				Assignees: assignees,
			},
		})
	}

	return out, nil
}
