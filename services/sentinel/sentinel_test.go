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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Config Tests
// =============================================================================

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "12300", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.CycleInterval)
	assert.Equal(t, 24*time.Hour, cfg.LookBack)
	assert.Equal(t, 48*time.Hour, cfg.LookAhead)
	require.NoError(t, cfg.Validate())
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("SENTINEL_PORT", "9999")
	t.Setenv("SENTINEL_DB_PATH", "\"/data/sentinel.db\"")
	t.Setenv("SENTINEL_CYCLE_INTERVAL", "5m")
	t.Setenv("SENTINEL_WEBHOOK_URL", "https://hooks.example.com/sentinel")
	t.Setenv("SENTINEL_RULES_PATH", "/etc/sentinel/rules.yaml")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "/data/sentinel.db", cfg.DBPath)
	assert.Equal(t, 5*time.Minute, cfg.CycleInterval)
	assert.Equal(t, "https://hooks.example.com/sentinel", cfg.WebhookURL)
	assert.Equal(t, "/etc/sentinel/rules.yaml", cfg.RulesPath)
}

func TestConfigFromEnv_LearningKnobs(t *testing.T) {
	t.Setenv("SENTINEL_MIN_SAMPLES", "12")
	t.Setenv("SENTINEL_ELIGIBILITY_THRESHOLD", "0.95")
	t.Setenv("SENTINEL_COLLECTOR_TIMEOUT", "3s")
	t.Setenv("SENTINEL_NOTIFY_COOLDOWN", "1h")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.MinSamples)
	assert.Equal(t, 0.95, cfg.EligibilityThreshold)
	assert.Equal(t, 3*time.Second, cfg.CollectorTimeout)
	assert.Equal(t, time.Hour, cfg.NotificationCooldown)
	require.NoError(t, cfg.Validate())
}

func TestConfigFromEnv_RejectsBadDuration(t *testing.T) {
	t.Setenv("SENTINEL_CYCLE_INTERVAL", "every-so-often")

	_, err := ConfigFromEnv()
	assert.Error(t, err)
}

func TestConfigValidate_RejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = "not-a-port"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.WebhookURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CycleInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.EligibilityThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

// =============================================================================
// Service Wiring Tests
// =============================================================================

func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "sentinel.db")
	cfg.AuditPath = filepath.Join(t.TempDir(), "audit")

	svc, err := New(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestServiceServesHealth(t *testing.T) {
	svc := newTestService(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	svc.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServiceRunsCycleOverHTTP(t *testing.T) {
	svc := newTestService(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/cycle/run", nil)
	svc.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var report map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.NotEmpty(t, report["cycle_id"])
	assert.EqualValues(t, 0, report["candidates"])
}

func TestServiceSituationLookupNotFound(t *testing.T) {
	svc := newTestService(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/situations/nope", nil)
	svc.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServiceRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = ""

	_, err := New(cfg, nil, nil)
	assert.Error(t, err)
}
