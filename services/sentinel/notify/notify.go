// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify delivers situation notifications to external channels.
//
// Delivery is strictly downstream of persistence: a failed notification
// is logged and surfaced to the caller, never rolled back into the
// situation lifecycle.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
)

// Notifier delivers one situation to an external channel.
type Notifier interface {
	Notify(ctx context.Context, sit *situation.Situation) error
}

// HTTPClient interface allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// =============================================================================
// Nop
// =============================================================================

// Nop discards notifications. Used when no channel is configured.
type Nop struct{}

func (Nop) Notify(context.Context, *situation.Situation) error { return nil }

// =============================================================================
// Fanout
// =============================================================================

// Fanout delivers to every channel in order and joins the failures.
// One failing channel does not stop delivery to the rest.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, sit *situation.Situation) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, sit); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Webhook
// =============================================================================

// WebhookConfig tunes the webhook notifier.
type WebhookConfig struct {
	// URL receives a JSON POST per notification.
	URL string

	// MaxAttempts bounds delivery retries. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt. Default: 500ms.
	InitialBackoff time.Duration

	// RatePerSecond caps outbound deliveries so a burst of detections
	// cannot flood the channel. Default: 2.
	RatePerSecond float64

	// Burst is the limiter burst size. Default: 4.
	Burst int
}

// DefaultWebhookConfig returns production delivery settings.
func DefaultWebhookConfig(url string) WebhookConfig {
	return WebhookConfig{
		URL:            url,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		RatePerSecond:  2,
		Burst:          4,
	}
}

// Webhook POSTs situations to a configured URL with retry and rate
// limiting.
type Webhook struct {
	cfg     WebhookConfig
	client  HTTPClient
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewWebhook creates a webhook notifier. A nil client uses a default
// http.Client with a 10s timeout.
func NewWebhook(cfg WebhookConfig, client HTTPClient, logger *slog.Logger) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notify: webhook URL is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger,
	}, nil
}

// webhookPayload is the wire format POSTed to the channel.
type webhookPayload struct {
	Event     string               `json:"event"`
	Situation *situation.Situation `json:"situation"`
	SentAt    time.Time            `json:"sent_at"`
}

// Notify delivers one situation, retrying transient failures with
// exponential backoff up to MaxAttempts.
//
// # Description
//
// Waits on the rate limiter first, so retries of one delivery cannot
// starve others. A 2xx response is success; 4xx responses are permanent
// (the payload will not improve on retry); everything else retries.
func (w *Webhook) Notify(ctx context.Context, sit *situation.Situation) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: rate limit wait: %w", err)
	}

	body, err := json.Marshal(webhookPayload{
		Event:     "situation_detected",
		Situation: sit,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	backoff := w.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		lastErr = w.post(ctx, body)
		if lastErr == nil {
			if attempt > 1 {
				w.logger.Info("webhook delivered after retry",
					"situation_id", sit.ID, "attempt", attempt)
			}
			return nil
		}
		var pd *permanentDeliveryError
		if errors.As(lastErr, &pd) {
			w.logger.Error("webhook delivery rejected",
				"situation_id", sit.ID, "status", pd.status)
			return lastErr
		}
		if attempt < w.cfg.MaxAttempts {
			w.logger.Warn("webhook delivery failed, retrying",
				"situation_id", sit.ID, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("notify: delivery failed after %d attempts: %w", w.cfg.MaxAttempts, lastErr)
}

type permanentDeliveryError struct {
	status int
}

func (e *permanentDeliveryError) Error() string {
	return fmt.Sprintf("notify: webhook returned %d", e.status)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &permanentDeliveryError{status: resp.StatusCode}
	default:
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
}
