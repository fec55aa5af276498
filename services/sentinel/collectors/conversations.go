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
// Conversations Collector
// =============================================================================

// ConversationThread is a chat or messaging thread with a follow-up owed.
type ConversationThread struct {
	ID           string
	Channel      string
	With         string
	LastActivity time.Time
}

// ConversationSource is the read-only query boundary to the conversation
// tracking store.
type ConversationSource interface {
	// FollowupsDue returns threads whose follow-up deadline has passed as
	// of the given instant.
	FollowupsDue(ctx context.Context, asOf time.Time) ([]ConversationThread, error)
}

// Conversations emits conversation_followup_due signals.
type Conversations struct {
	source ConversationSource
}

// NewConversations creates a conversations collector over the given source.
func NewConversations(source ConversationSource) *Conversations {
	return &Conversations{source: source}
}

// Name implements signal.Collector.
func (c *Conversations) Name() string { return "conversations" }

// Collect implements signal.Collector.
func (c *Conversations) Collect(ctx context.Context, w signal.Window) ([]signal.Signal, error) {
	threads, err := c.source.FollowupsDue(ctx, w.Now)
	if err != nil {
		return nil, fmt.Errorf("conversations: query followups: %w", err)
	}

	var out []signal.Signal
	for _, th := range threads {
		if th.ID == "" {
			continue
		}
		prio := signal.PriorityMedium
		if w.Now.Sub(th.LastActivity) > 7*24*time.Hour {
			prio = signal.PriorityHigh
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeConversationFollowup,
			Source:    c.Name(),
			Priority:  prio,
			Timestamp: th.LastActivity,
			Payload: signal.ConversationFollowup{
				ThreadID:     th.ID,
				Channel:      th.Channel,
				With:         th.With,
				LastActivity: th.LastActivity,
			},
		})
	}

	return out, nil
}
