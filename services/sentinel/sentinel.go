// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sentinel assembles the signal-to-situation pipeline into a
// runnable service: collectors feed a rule-based detector, detected
// situations are deduplicated and persisted, and the API plus webhook and
// websocket channels expose the results.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/audit"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/cycle"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/detect"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/handlers"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/manager"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/notify"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/observability"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/routes"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/store"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/suggest"
)

// Service is the assembled sentinel: storage, pipeline, scheduler, and
// HTTP surface. Build one with New, run it with Run, release resources
// with Close.
type Service struct {
	cfg    Config
	logger *slog.Logger

	store      *store.Store
	auditCache *audit.Cache
	manager    *manager.Manager
	rules      *detect.Watcher
	hub        *handlers.Hub
	scheduler  *cycle.Scheduler
	router     *gin.Engine

	tracerCleanup func(context.Context)
}

// New wires a service from configuration and the domain collectors.
//
// # Description
//
// Opens the situation store and audit cache, builds the detection rule
// watcher (embedded table, or the RulesPath override when set), and
// composes the notification fan-out: the
// websocket hub always participates, the webhook only when configured.
// Metrics register on a per-service Prometheus registry served on
// /metrics, so multiple services can coexist in one process.
func New(cfg Config, collectors []signal.Collector, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sentinel: open situation store: %w", err)
	}

	var auditCache *audit.Cache
	if cfg.AuditPath != "" {
		auditCfg := audit.DefaultConfig()
		auditCfg.Path = cfg.AuditPath
		auditCfg.Logger = logger
		auditCache, err = audit.Open(auditCfg)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("sentinel: open audit cache: %w", err)
		}
	}

	rules, err := detect.NewWatcher(cfg.RulesPath)
	if err != nil {
		if auditCache != nil {
			auditCache.Close()
		}
		st.Close()
		return nil, fmt.Errorf("sentinel: load detection rules: %w", err)
	}

	mgrCfg := manager.DefaultConfig()
	mgrCfg.NotificationCooldown = cfg.NotificationCooldown
	mgrCfg.MinSamples = cfg.MinSamples
	mgrCfg.EligibilityThreshold = cfg.EligibilityThreshold
	mgr := manager.NewManager(st, mgrCfg, logger)
	hub := handlers.NewHub(logger)

	channels := notify.Fanout{hub}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhook(notify.DefaultWebhookConfig(cfg.WebhookURL), nil, logger)
		if err != nil {
			if auditCache != nil {
				auditCache.Close()
			}
			st.Close()
			return nil, err
		}
		channels = append(channels, webhook)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var auditSink cycle.AuditSink
	if auditCache != nil {
		auditSink = auditCache
	}
	runner := cycle.NewRunner(
		collectors,
		rules,
		suggest.NewSuggester(),
		mgr,
		channels,
		auditSink,
		metrics,
		logger,
		cycle.Config{
			LookBack:         cfg.LookBack,
			LookAhead:        cfg.LookAhead,
			CollectorTimeout: cfg.CollectorTimeout,
		},
	)
	scheduler := cycle.NewScheduler(runner, logger, cycle.SchedulerConfig{
		Interval:   cfg.CycleInterval,
		RunOnStart: true,
	})

	router := gin.Default()
	router.Use(otelgin.Middleware("sentinel-service"))
	var auditReader handlers.AuditReader
	if auditCache != nil {
		auditReader = auditCache
	}
	routes.SetupRoutes(router, mgr, scheduler, auditReader, hub, registry)

	return &Service{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		auditCache: auditCache,
		manager:    mgr,
		rules:      rules,
		hub:        hub,
		scheduler:  scheduler,
		router:     router,
	}, nil
}

// Manager exposes the situation manager for CLI-style callers that
// bypass HTTP.
func (s *Service) Manager() *manager.Manager { return s.manager }

// Scheduler exposes the cycle scheduler.
func (s *Service) Scheduler() *cycle.Scheduler { return s.scheduler }

// Router exposes the HTTP handler for tests and embedding.
func (s *Service) Router() http.Handler { return s.router }

// Run starts the cycle scheduler and serves the HTTP API until ctx is
// cancelled, then shuts both down gracefully.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.OTELEndpoint != "" {
		cleanup, err := initTracer(ctx, s.cfg.OTELEndpoint)
		if err != nil {
			return fmt.Errorf("sentinel: setup OTLP tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}
	defer s.scheduler.Stop()

	go func() {
		if err := s.rules.Watch(ctx); err != nil {
			s.logger.Warn("sentinel: rules watcher stopped", "error", err)
		}
	}()

	server := &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("sentinel: serving API", "port", s.cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Close releases storage resources. Call after Run returns.
func (s *Service) Close() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
	if s.auditCache != nil {
		if err := s.auditCache.Close(); err != nil {
			s.logger.Warn("sentinel: close audit cache", "error", err)
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("sentinel: close situation store", "error", err)
	}
}

// initTracer sets up the OTLP gRPC trace exporter.
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("sentinel-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}
