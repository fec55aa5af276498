// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/handlers"
)

// SetupRoutes registers the sentinel API surface.
//
// runner and auditReader may be nil; their routes are skipped, which lets
// read-only deployments expose the situation API without a cycle engine.
// gatherer is the metrics registry to expose on /metrics; nil falls back
// to the process-wide default.
func SetupRoutes(router *gin.Engine, svc handlers.SituationService, runner handlers.CycleRunner,
	auditReader handlers.AuditReader, hub *handlers.Hub, gatherer prometheus.Gatherer) {

	router.GET("/health", handlers.HealthCheck)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	} else {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		situations := v1.Group("/situations")
		{
			situations.GET("", handlers.ListSituations(svc))
			if hub != nil {
				situations.GET("/ws", handlers.StreamSituations(hub))
			}
			situations.GET("/:situationId", handlers.GetSituation(svc))
			situations.POST("/:situationId/respond", handlers.RespondToSituation(svc))
		}

		v1.GET("/digest", handlers.GetDigest(svc))
		v1.GET("/stats", handlers.GetStats(svc))
		v1.GET("/eligibility", handlers.CheckEligibility(svc))

		if runner != nil {
			v1.POST("/cycle/run", handlers.RunCycle(runner))
		}

		if auditReader != nil {
			auditGroup := v1.Group("/audit")
			{
				auditGroup.GET("/batches", handlers.ListAuditBatches(auditReader))
				auditGroup.GET("/batches/:cycleId", handlers.GetAuditBatch(auditReader))
			}
		}
	}
}
