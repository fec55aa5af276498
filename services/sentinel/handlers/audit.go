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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/audit"
)

// AuditReader exposes the signal batches cached per cycle.
type AuditReader interface {
	Batch(ctx context.Context, cycleID string) (*audit.BatchRecord, error)
	RecentBatches(ctx context.Context, limit int) ([]*audit.BatchRecord, error)
}

// ListAuditBatches returns the most recent cached signal batches, newest
// first. ?limit= caps the count, default 20.
func ListAuditBatches(reader AuditReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		batches, err := reader.RecentBatches(c.Request.Context(), limit)
		if err != nil {
			slog.Error("failed to list audit batches", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit batches"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"batches": batches,
			"count":   len(batches),
		})
	}
}

// GetAuditBatch returns the cached signal batch for one cycle.
func GetAuditBatch(reader AuditReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		cycleID := c.Param("cycleId")

		batch, err := reader.Batch(c.Request.Context(), cycleID)
		if errors.Is(err, audit.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		if err != nil {
			slog.Error("failed to load audit batch", "cycleId", cycleID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit batch"})
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}
