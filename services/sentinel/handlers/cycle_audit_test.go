// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/audit"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/cycle"
)

// =============================================================================
// RunCycle Tests
// =============================================================================

type fakeRunner struct {
	report *cycle.Report
	err    error
}

func (f *fakeRunner) RunNow(context.Context) (*cycle.Report, error) {
	return f.report, f.err
}

func TestRunCycle_ReturnsReport(t *testing.T) {
	runner := &fakeRunner{report: &cycle.Report{CycleID: "cyc-1", Candidates: 2}}
	router := gin.New()
	router.POST("/v1/cycle/run", RunCycle(runner))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/cycle/run", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "cyc-1", response["cycle_id"])
}

func TestRunCycle_BusyMapsToConflict(t *testing.T) {
	runner := &fakeRunner{err: cycle.ErrCycleInProgress}
	router := gin.New()
	router.POST("/v1/cycle/run", RunCycle(runner))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/cycle/run", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

// =============================================================================
// Audit Handler Tests
// =============================================================================

type fakeAuditReader struct {
	batches []*audit.BatchRecord
	err     error

	gotLimit int
}

func (f *fakeAuditReader) Batch(context.Context, string) (*audit.BatchRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batches[0], nil
}

func (f *fakeAuditReader) RecentBatches(_ context.Context, limit int) ([]*audit.BatchRecord, error) {
	f.gotLimit = limit
	return f.batches, f.err
}

func TestListAuditBatches_DefaultLimit(t *testing.T) {
	reader := &fakeAuditReader{batches: []*audit.BatchRecord{
		{CycleID: "cyc-1", CollectedAt: time.Now().UTC(), Count: 3},
	}}
	router := gin.New()
	router.GET("/v1/audit/batches", ListAuditBatches(reader))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/audit/batches", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, reader.gotLimit)
}

func TestListAuditBatches_RejectsBadLimit(t *testing.T) {
	reader := &fakeAuditReader{}
	router := gin.New()
	router.GET("/v1/audit/batches", ListAuditBatches(reader))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/audit/batches?limit=zero", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAuditBatch_NotFound(t *testing.T) {
	reader := &fakeAuditReader{err: audit.ErrBatchNotFound}
	router := gin.New()
	router.GET("/v1/audit/batches/:cycleId", GetAuditBatch(reader))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/audit/batches/nope", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAuditBatch_UnexpectedFailure(t *testing.T) {
	reader := &fakeAuditReader{err: errors.New("cache sad")}
	router := gin.New()
	router.GET("/v1/audit/batches/:cycleId", GetAuditBatch(reader))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/audit/batches/cyc-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
