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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/cycle"
)

// CycleRunner triggers one sense-decide-act cycle on demand.
type CycleRunner interface {
	RunNow(ctx context.Context) (*cycle.Report, error)
}

// RunCycle executes one cycle immediately and returns its report. A 409
// means a cycle is already in flight; the caller should retry later.
func RunCycle(runner CycleRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Info("Received request to run a cycle")

		report, err := runner.RunNow(c.Request.Context())
		if errors.Is(err, cycle.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "a cycle is already in progress"})
			return
		}
		if err != nil {
			slog.Error("on-demand cycle failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cycle failed"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
