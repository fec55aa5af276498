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
// Tasks Collector
// =============================================================================

// TaskRecord is an open task from the task tracker.
type TaskRecord struct {
	ID    string
	Title string
	DueAt time.Time
}

// TaskSource is the read-only query boundary to the task tracker.
type TaskSource interface {
	// Overdue returns open tasks whose due date has passed as of the
	// given instant.
	Overdue(ctx context.Context, asOf time.Time) ([]TaskRecord, error)

	// DueBetween returns open tasks due inside [start, end].
	DueBetween(ctx context.Context, start, end time.Time) ([]TaskRecord, error)
}

// Tasks emits task_overdue and task_due_soon signals.
type Tasks struct {
	source TaskSource
}

// NewTasks creates a tasks collector over the given source.
func NewTasks(source TaskSource) *Tasks {
	return &Tasks{source: source}
}

// Name implements signal.Collector.
func (t *Tasks) Name() string { return "tasks" }

// Collect implements signal.Collector.
func (t *Tasks) Collect(ctx context.Context, w signal.Window) ([]signal.Signal, error) {
	var out []signal.Signal

	overdue, err := t.source.Overdue(ctx, w.Now)
	if err != nil {
		return nil, fmt.Errorf("tasks: query overdue: %w", err)
	}
	for _, task := range overdue {
		if task.ID == "" {
			continue
		}
		days := int(w.Now.Sub(task.DueAt).Hours() / 24)
		prio := signal.PriorityMedium
		if days >= 3 {
			prio = signal.PriorityHigh
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeTaskOverdue,
			Source:    t.Name(),
			Priority:  prio,
			Timestamp: task.DueAt,
			Payload: signal.TaskOverdue{
				TaskID:      task.ID,
				Title:       task.Title,
				DueAt:       task.DueAt,
				DaysOverdue: days,
			},
		})
	}

	upcoming, err := t.source.DueBetween(ctx, w.Now, w.End())
	if err != nil {
		return nil, fmt.Errorf("tasks: query due soon: %w", err)
	}
	for _, task := range upcoming {
		if task.ID == "" {
			continue
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeTaskDueSoon,
			Source:    t.Name(),
			Priority:  signal.PriorityLow,
			Timestamp: task.DueAt,
			Payload: signal.TaskDueSoon{
				TaskID:     task.ID,
				Title:      task.Title,
				DueAt:      task.DueAt,
				HoursUntil: task.DueAt.Sub(w.Now).Hours(),
			},
		})
	}

	return out, nil
}
