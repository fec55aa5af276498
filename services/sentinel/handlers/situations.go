// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers holds the gin handler functions for the sentinel API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/manager"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/store"
)

// SituationService is the slice of the situation manager the API exposes.
type SituationService interface {
	ListPending(ctx context.Context, minPriority signal.Priority) ([]*situation.Situation, error)
	Get(ctx context.Context, id string) (*situation.Situation, error)
	Respond(ctx context.Context, id string, req manager.RespondRequest) (*situation.Situation, error)
	Digest(ctx context.Context, since time.Time) ([]*situation.Situation, error)
	Stats(ctx context.Context, period time.Duration) (*store.Stats, error)
	AutoExecutionEligible(ctx context.Context, situationType, actionType string) (bool, error)
}

// ListSituations returns pending situations, priority-descending.
// ?min_priority=low|medium|high|critical filters out anything below the
// named priority; unknown values fall back to low, which filters nothing.
func ListSituations(svc SituationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		minPriority := signal.ParsePriority(c.DefaultQuery("min_priority", "low"))

		situations, err := svc.ListPending(c.Request.Context(), minPriority)
		if err != nil {
			slog.Error("failed to list pending situations", "error", err)
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to list pending situations"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"situations": situations,
			"count":      len(situations),
		})
	}
}

// GetSituation returns one situation by ID.
func GetSituation(svc SituationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("situationId")

		sit, err := svc.Get(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "situation not found"})
			return
		}
		if err != nil {
			slog.Error("failed to load situation", "situationId", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load situation"})
			return
		}
		c.JSON(http.StatusOK, sit)
	}
}

// RespondBody is a user decision submitted over the API.
type RespondBody struct {
	Status     string `json:"status" binding:"required,oneof=ACTIONED DISMISSED SNOOZED"`
	ActionType string `json:"action_type"`
	SnoozeFor  string `json:"snooze_for"`
}

// RespondToSituation applies a user decision (action, dismiss, snooze) to
// a situation. Invalid lifecycle transitions map to 409.
func RespondToSituation(svc SituationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("situationId")

		var body RespondBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		req := manager.RespondRequest{
			Status:     situation.Status(body.Status),
			ActionType: body.ActionType,
		}
		if body.SnoozeFor != "" {
			d, err := time.ParseDuration(body.SnoozeFor)
			if err != nil || d <= 0 {
				c.JSON(http.StatusBadRequest,
					gin.H{"error": "snooze_for must be a positive duration, e.g. \"4h\""})
				return
			}
			req.SnoozeFor = d
		}
		if req.Status == situation.StatusSnoozed && req.SnoozeFor <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "snooze_for is required for SNOOZED"})
			return
		}

		sit, err := svc.Respond(c.Request.Context(), id, req)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "situation not found"})
			return
		case errors.Is(err, manager.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case err != nil:
			slog.Error("failed to apply response", "situationId", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply response"})
			return
		}
		c.JSON(http.StatusOK, sit)
	}
}

// GetDigest returns every situation updated since the given instant,
// terminal ones included. ?since= accepts RFC 3339 or a relative
// duration like "24h"; the default is the last 24 hours.
func GetDigest(svc SituationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		since, err := parseSince(c.DefaultQuery("since", "24h"))
		if err != nil {
			c.JSON(http.StatusBadRequest,
				gin.H{"error": "since must be RFC 3339 or a duration, e.g. \"24h\""})
			return
		}

		situations, err := svc.Digest(c.Request.Context(), since)
		if err != nil {
			slog.Error("failed to build digest", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build digest"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"since":      since,
			"situations": situations,
			"count":      len(situations),
		})
	}
}

// GetStats returns aggregate situation and response counts.
// ?period= bounds the window as a duration; empty means all time.
func GetStats(svc SituationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var period time.Duration
		if raw := c.Query("period"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				c.JSON(http.StatusBadRequest,
					gin.H{"error": "period must be a positive duration, e.g. \"168h\""})
				return
			}
			period = d
		}

		stats, err := svc.Stats(c.Request.Context(), period)
		if err != nil {
			slog.Error("failed to collect stats", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to collect stats"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// CheckEligibility reports whether a situation-type/action-type pair has
// earned auto-execution based on the response ledger.
func CheckEligibility(svc SituationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		situationType := c.Query("situation_type")
		actionType := c.Query("action_type")
		if situationType == "" || actionType == "" {
			c.JSON(http.StatusBadRequest,
				gin.H{"error": "situation_type and action_type are required"})
			return
		}

		eligible, err := svc.AutoExecutionEligible(c.Request.Context(), situationType, actionType)
		if err != nil {
			slog.Error("failed to check eligibility", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check eligibility"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"situation_type": situationType,
			"action_type":    actionType,
			"eligible":       eligible,
		})
	}
}

// parseSince accepts an absolute RFC 3339 instant or a relative duration
// counted back from now.
func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return time.Time{}, errors.New("invalid since value")
	}
	return time.Now().UTC().Add(-d), nil
}
