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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// =============================================================================
// Weather Collector
// =============================================================================

// WeatherAdvisory is an active advisory from the weather API.
type WeatherAdvisory struct {
	ID        string
	Condition string
	Severity  string
	Location  string
	ValidFrom time.Time
	ValidTo   time.Time
}

// WeatherSource is the read-only query boundary to the weather API.
type WeatherSource interface {
	// ActiveAlerts returns advisories overlapping [start, end].
	ActiveAlerts(ctx context.Context, start, end time.Time) ([]WeatherAdvisory, error)
}

// Weather emits weather_alert signals for advisories overlapping the
// cycle's look-ahead window.
type Weather struct {
	source WeatherSource
}

// NewWeather creates a weather collector over the given source.
func NewWeather(source WeatherSource) *Weather {
	return &Weather{source: source}
}

// Name implements signal.Collector.
func (wc *Weather) Name() string { return "weather" }

// Collect implements signal.Collector.
func (wc *Weather) Collect(ctx context.Context, w signal.Window) ([]signal.Signal, error) {
	alerts, err := wc.source.ActiveAlerts(ctx, w.Now, w.End())
	if err != nil {
		return nil, fmt.Errorf("weather: query alerts: %w", err)
	}

	var out []signal.Signal
	for _, a := range alerts {
		if a.ID == "" || a.Condition == "" {
			continue
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeWeatherAlert,
			Source:    wc.Name(),
			Priority:  advisoryPriority(a.Severity),
			Timestamp: a.ValidFrom,
			Payload: signal.WeatherAlert{
				AlertID:   a.ID,
				Condition: a.Condition,
				Severity:  a.Severity,
				Location:  a.Location,
				ValidFrom: a.ValidFrom,
				ValidTo:   a.ValidTo,
			},
		})
	}

	return out, nil
}

// advisoryPriority maps the provider's severity scale onto signal priority.
func advisoryPriority(severity string) signal.Priority {
	switch strings.ToLower(severity) {
	case "extreme":
		return signal.PriorityCritical
	case "severe":
		return signal.PriorityHigh
	case "moderate":
		return signal.PriorityMedium
	default:
		return signal.PriorityLow
	}
}
