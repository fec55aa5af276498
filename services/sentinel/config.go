// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// configValidate is the validator instance for service configuration.
var configValidate = validator.New()

// Config holds everything the sentinel service needs to start.
//
// # Fields
//
//   - Port: TCP port for the HTTP API.
//   - DBPath: SQLite database file for situations and the response
//     ledger. ":memory:" runs fully in memory.
//   - AuditPath: Badger directory for the per-cycle signal batch cache.
//     Empty disables the audit cache.
//   - WebhookURL: outbound notification endpoint. Empty disables the
//     webhook channel; the websocket stream still works.
//   - CycleInterval: period between scheduled cycles.
//   - LookBack/LookAhead: collection window relative to each cycle.
//   - CollectorTimeout: per-collector budget within a cycle.
//   - NotificationCooldown: suppression window for re-notifying a merged
//     situation.
//   - MinSamples/EligibilityThreshold: auto-execution learning floor and
//     acceptance ratio.
//   - RulesPath: optional detection-rules override file, hot-reloaded on
//     change. Empty runs the embedded rule table.
//   - OTELEndpoint: OTLP gRPC collector address. Empty disables tracing.
type Config struct {
	Port                 string        `validate:"required,numeric"`
	DBPath               string        `validate:"required"`
	AuditPath            string        `validate:"-"`
	RulesPath            string        `validate:"-"`
	WebhookURL           string        `validate:"omitempty,url"`
	CycleInterval        time.Duration `validate:"gt=0"`
	LookBack             time.Duration `validate:"gt=0"`
	LookAhead            time.Duration `validate:"gt=0"`
	CollectorTimeout     time.Duration `validate:"gt=0"`
	NotificationCooldown time.Duration `validate:"gte=0"`
	MinSamples           int           `validate:"gte=1"`
	EligibilityThreshold float64       `validate:"gt=0,lte=1"`
	OTELEndpoint         string        `validate:"-"`
}

// DefaultConfig returns the settings used when the environment is silent.
func DefaultConfig() Config {
	return Config{
		Port:                 "12300",
		DBPath:               "sentinel.db",
		AuditPath:            "sentinel-audit",
		CycleInterval:        15 * time.Minute,
		LookBack:             24 * time.Hour,
		LookAhead:            48 * time.Hour,
		CollectorTimeout:     10 * time.Second,
		NotificationCooldown: 4 * time.Hour,
		MinSamples:           5,
		EligibilityThreshold: 0.8,
	}
}

// ConfigFromEnv builds a Config from SENTINEL_* environment variables,
// falling back to defaults for anything unset.
//
// Durations use Go syntax ("15m", "48h"). Values are trimmed of quotes
// and whitespace in case the container runtime passes them literally.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := cleanEnv("SENTINEL_PORT"); v != "" {
		cfg.Port = v
	}
	if v := cleanEnv("SENTINEL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("SENTINEL_AUDIT_PATH"); ok {
		cfg.AuditPath = strings.Trim(v, "\"' ")
	}
	if v := cleanEnv("SENTINEL_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := cleanEnv("SENTINEL_RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
	if v := cleanEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}

	var err error
	if cfg.CycleInterval, err = durationEnv("SENTINEL_CYCLE_INTERVAL", cfg.CycleInterval); err != nil {
		return cfg, err
	}
	if cfg.LookBack, err = durationEnv("SENTINEL_LOOK_BACK", cfg.LookBack); err != nil {
		return cfg, err
	}
	if cfg.LookAhead, err = durationEnv("SENTINEL_LOOK_AHEAD", cfg.LookAhead); err != nil {
		return cfg, err
	}
	if cfg.CollectorTimeout, err = durationEnv("SENTINEL_COLLECTOR_TIMEOUT", cfg.CollectorTimeout); err != nil {
		return cfg, err
	}
	if cfg.NotificationCooldown, err = durationEnv("SENTINEL_NOTIFY_COOLDOWN", cfg.NotificationCooldown); err != nil {
		return cfg, err
	}
	if v := cleanEnv("SENTINEL_MIN_SAMPLES"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return cfg, fmt.Errorf("sentinel config: SENTINEL_MIN_SAMPLES: %w", convErr)
		}
		cfg.MinSamples = n
	}
	if v := cleanEnv("SENTINEL_ELIGIBILITY_THRESHOLD"); v != "" {
		f, convErr := strconv.ParseFloat(v, 64)
		if convErr != nil {
			return cfg, fmt.Errorf("sentinel config: SENTINEL_ELIGIBILITY_THRESHOLD: %w", convErr)
		}
		cfg.EligibilityThreshold = f
	}
	return cfg, nil
}

// Validate checks the configuration against its constraints.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("sentinel config: %w", err)
	}
	return nil
}

func cleanEnv(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := cleanEnv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("sentinel config: %s: %w", key, err)
	}
	return d, nil
}
