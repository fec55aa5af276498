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
// Social Collector
// =============================================================================

// SocialPost is a post mentioning the user or their work.
type SocialPost struct {
	ID       string
	Platform string
	Author   string
	Reach    int
	PostedAt time.Time
}

// SocialSource is the read-only query boundary to the social media API.
type SocialSource interface {
	// MentionsSince returns mentions posted at or after the given instant.
	MentionsSince(ctx context.Context, since time.Time) ([]SocialPost, error)
}

// Social emits social_mention signals.
type Social struct {
	source SocialSource

	// wideReach is the audience size at or above which a mention is
	// high priority.
	wideReach int
}

// NewSocial creates a social collector. wideReach <= 0 defaults to 1000.
func NewSocial(source SocialSource, wideReach int) *Social {
	if wideReach <= 0 {
		wideReach = 1000
	}
	return &Social{source: source, wideReach: wideReach}
}

// Name implements signal.Collector.
func (s *Social) Name() string { return "social" }

// Collect implements signal.Collector.
func (s *Social) Collect(ctx context.Context, w signal.Window) ([]signal.Signal, error) {
	posts, err := s.source.MentionsSince(ctx, w.Start())
	if err != nil {
		return nil, fmt.Errorf("social: query mentions: %w", err)
	}

	var out []signal.Signal
	for _, p := range posts {
		if p.ID == "" || p.Platform == "" {
			continue
		}
		prio := signal.PriorityLow
		if p.Reach >= s.wideReach {
			prio = signal.PriorityHigh
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeSocialMention,
			Source:    s.Name(),
			Priority:  prio,
			Timestamp: p.PostedAt,
			Payload: signal.SocialMention{
				PostID:   p.ID,
				Platform: p.Platform,
				Author:   p.Author,
				Reach:    p.Reach,
			},
		})
	}

	return out, nil
}
