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

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// =============================================================================
// Knowledge Collector
// =============================================================================

// NoteMatch links a tracked keyword to a note in the knowledge base.
type NoteMatch struct {
	Keyword string
	NoteID  string
	Title   string
}

// KnowledgeSource is the read-only query boundary to the knowledge base.
// The knowledge base maintains its own list of tracked keywords and
// reports which of them currently match stored notes.
type KnowledgeSource interface {
	TrackedKeywordMatches(ctx context.Context) ([]NoteMatch, error)
}

// Knowledge emits knowledge_match signals. Combined with trend_spike
// signals on the same keyword, these surface publishable material the
// user already has on a topic that is currently hot.
type Knowledge struct {
	source KnowledgeSource
}

// NewKnowledge creates a knowledge collector over the given source.
func NewKnowledge(source KnowledgeSource) *Knowledge {
	return &Knowledge{source: source}
}

// Name implements signal.Collector.
func (k *Knowledge) Name() string { return "knowledge" }

// Collect implements signal.Collector.
func (k *Knowledge) Collect(ctx context.Context, w signal.Window) ([]signal.Signal, error) {
	matches, err := k.source.TrackedKeywordMatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query matches: %w", err)
	}

	var out []signal.Signal
	for _, m := range matches {
		if m.Keyword == "" || m.NoteID == "" {
			continue
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeKnowledgeMatch,
			Source:    k.Name(),
			Priority:  signal.PriorityLow,
			Timestamp: w.Now,
			Payload: signal.KnowledgeMatch{
				Keyword: m.Keyword,
				NoteID:  m.NoteID,
				Title:   m.Title,
			},
		})
	}

	return out, nil
}
