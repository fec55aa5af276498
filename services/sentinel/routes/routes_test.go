// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/audit"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/cycle"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/handlers"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/manager"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/store"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

type stubService struct{}

func (stubService) ListPending(context.Context, signal.Priority) ([]*situation.Situation, error) {
	return nil, nil
}

func (stubService) Get(context.Context, string) (*situation.Situation, error) {
	return nil, store.ErrNotFound
}

func (stubService) Respond(context.Context, string, manager.RespondRequest) (*situation.Situation, error) {
	return nil, store.ErrNotFound
}

func (stubService) Digest(context.Context, time.Time) ([]*situation.Situation, error) {
	return nil, nil
}

func (stubService) Stats(context.Context, time.Duration) (*store.Stats, error) {
	return &store.Stats{}, nil
}

func (stubService) AutoExecutionEligible(context.Context, string, string) (bool, error) {
	return false, nil
}

type stubRunner struct{}

func (stubRunner) RunNow(context.Context) (*cycle.Report, error) {
	return &cycle.Report{CycleID: "cyc-1"}, nil
}

type stubAuditReader struct{}

func (stubAuditReader) Batch(context.Context, string) (*audit.BatchRecord, error) {
	return nil, audit.ErrBatchNotFound
}

func (stubAuditReader) RecentBatches(context.Context, int) ([]*audit.BatchRecord, error) {
	return nil, nil
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersFullSurface(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, stubService{}, stubRunner{}, stubAuditReader{}, handlers.NewHub(nil), prometheus.NewRegistry())

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/v1/situations"},
		{"GET", "/v1/situations/ws"},
		{"GET", "/v1/situations/:situationId"},
		{"POST", "/v1/situations/:situationId/respond"},
		{"GET", "/v1/digest"},
		{"GET", "/v1/stats"},
		{"GET", "/v1/eligibility"},
		{"POST", "/v1/cycle/run"},
		{"GET", "/v1/audit/batches"},
		{"GET", "/v1/audit/batches/:cycleId"},
	}

	routes := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range routes {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected route %s %s not found", want.method, want.path)
		}
	}
}

func TestSetupRoutes_OptionalComponentsCanBeNil(t *testing.T) {
	router := gin.New()

	// Should not panic without a cycle runner, audit reader, or hub.
	SetupRoutes(router, stubService{}, nil, nil, nil, nil)

	for _, r := range router.Routes() {
		switch {
		case r.Method == "POST" && r.Path == "/v1/cycle/run":
			t.Error("cycle route registered without a runner")
		case r.Path == "/v1/audit/batches":
			t.Error("audit route registered without a reader")
		case r.Path == "/v1/situations/ws":
			t.Error("websocket route registered without a hub")
		}
	}
}

func TestSetupRoutes_HealthCheckResponds(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, stubService{}, nil, nil, nil, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", w.Code)
	}
}
