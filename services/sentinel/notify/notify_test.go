// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
)

// mockHTTPClient returns canned status codes in sequence and records
// request bodies.
type mockHTTPClient struct {
	statuses []int
	err      error
	calls    int
	bodies   []string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		m.bodies = append(m.bodies, string(b))
	}
	if m.err != nil {
		return nil, m.err
	}
	status := m.statuses[0]
	if len(m.statuses) > 1 {
		m.statuses = m.statuses[1:]
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() WebhookConfig {
	cfg := DefaultWebhookConfig("http://hook.local/sentinel")
	cfg.InitialBackoff = time.Millisecond
	cfg.RatePerSecond = 1000
	cfg.Burst = 1000
	return cfg
}

func testSituation() *situation.Situation {
	return &situation.Situation{
		ID:     "sit-1",
		Type:   "deadline",
		Title:  "Upcoming deadline needs preparation",
		Status: situation.StatusPending,
	}
}

func TestWebhookDeliversPayload(t *testing.T) {
	client := &mockHTTPClient{statuses: []int{200}}
	w, err := NewWebhook(fastConfig(), client, testLogger())
	require.NoError(t, err)

	require.NoError(t, w.Notify(context.Background(), testSituation()))
	require.Equal(t, 1, client.calls)

	var payload webhookPayload
	require.NoError(t, json.Unmarshal([]byte(client.bodies[0]), &payload))
	assert.Equal(t, "situation_detected", payload.Event)
	assert.Equal(t, "sit-1", payload.Situation.ID)
}

func TestWebhookRetriesTransientFailures(t *testing.T) {
	client := &mockHTTPClient{statuses: []int{503, 502, 200}}
	w, err := NewWebhook(fastConfig(), client, testLogger())
	require.NoError(t, err)

	require.NoError(t, w.Notify(context.Background(), testSituation()))
	assert.Equal(t, 3, client.calls)
}

func TestWebhookGivesUpAfterMaxAttempts(t *testing.T) {
	client := &mockHTTPClient{statuses: []int{500}}
	w, err := NewWebhook(fastConfig(), client, testLogger())
	require.NoError(t, err)

	err = w.Notify(context.Background(), testSituation())
	require.Error(t, err)
	assert.Equal(t, 3, client.calls, "default MaxAttempts")
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	client := &mockHTTPClient{statuses: []int{400}}
	w, err := NewWebhook(fastConfig(), client, testLogger())
	require.NoError(t, err)

	err = w.Notify(context.Background(), testSituation())
	require.Error(t, err)
	assert.Equal(t, 1, client.calls, "4xx is permanent")
}

func TestWebhookHonorsContextDuringBackoff(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialBackoff = time.Minute
	client := &mockHTTPClient{statuses: []int{500}}
	w, err := NewWebhook(cfg, client, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = w.Notify(ctx, testSituation())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "cancelled instead of sleeping out the backoff")
}

func TestWebhookRequiresURL(t *testing.T) {
	_, err := NewWebhook(WebhookConfig{}, nil, testLogger())
	assert.Error(t, err)
}

func TestNopNotifier(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(context.Background(), testSituation()))
}
