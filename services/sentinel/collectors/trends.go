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
// Trends Collector
// =============================================================================

// TrendObservation is one tracked keyword whose activity score crossed the
// trend service's spike threshold.
type TrendObservation struct {
	Keyword    string
	Score      float64
	Source     string
	ObservedAt time.Time
}

// TrendSource is the read-only query boundary to the trend-tracking service.
type TrendSource interface {
	// SpikesSince returns spike observations recorded at or after the
	// given instant.
	SpikesSince(ctx context.Context, since time.Time) ([]TrendObservation, error)
}

// Trends emits trend_spike signals for tracked keywords.
type Trends struct {
	source TrendSource

	// hotScore is the score at or above which a spike is high priority.
	hotScore float64
}

// NewTrends creates a trends collector. hotScore <= 0 defaults to 80.
func NewTrends(source TrendSource, hotScore float64) *Trends {
	if hotScore <= 0 {
		hotScore = 80
	}
	return &Trends{source: source, hotScore: hotScore}
}

// Name implements signal.Collector.
func (t *Trends) Name() string { return "trends" }

// Collect implements signal.Collector.
func (t *Trends) Collect(ctx context.Context, w signal.Window) ([]signal.Signal, error) {
	spikes, err := t.source.SpikesSince(ctx, w.Start())
	if err != nil {
		return nil, fmt.Errorf("trends: query spikes: %w", err)
	}

	var out []signal.Signal
	for _, sp := range spikes {
		if sp.Keyword == "" || sp.Score <= 0 {
			continue
		}
		prio := signal.PriorityMedium
		if sp.Score >= t.hotScore {
			prio = signal.PriorityHigh
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeTrendSpike,
			Source:    t.Name(),
			Priority:  prio,
			Timestamp: sp.ObservedAt,
			Payload: signal.TrendSpike{
				Keyword: sp.Keyword,
				Score:   sp.Score,
				Source:  sp.Source,
			},
		})
	}

	return out, nil
}
