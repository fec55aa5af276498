// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSentinel/pkg/ux"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/cycle"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
	"github.com/spf13/cobra"
)

var apiClient = &http.Client{Timeout: 30 * time.Second}

// =============================================================================
// HTTP plumbing
// =============================================================================

// callAPI performs one request against the sentinel API and decodes the JSON
// response into out. Non-2xx responses become errors carrying the server's
// error message when one is present.
func callAPI(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, strings.TrimRight(apiBaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("is sentinel running at %s? %w", apiBaseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func fail(err error) {
	ux.Error(err.Error())
	os.Exit(1)
}

// =============================================================================
// Commands
// =============================================================================

func runCycle(cmd *cobra.Command, args []string) {
	var report cycle.Report
	err := ux.WithSpinner("Running collection cycle", func() error {
		return callAPI(http.MethodPost, "/v1/cycle/run", nil, &report)
	})
	if err != nil {
		fail(err)
	}

	signals := 0
	for _, n := range report.SignalsBySource {
		signals += n
	}
	ux.Success(fmt.Sprintf("Cycle %s finished in %s", report.CycleID, report.Duration.Round(time.Millisecond)))
	ux.Info(fmt.Sprintf("%d signals -> %d candidates (%d new, %d merged, %d notified)",
		signals, report.Candidates, report.Created, report.Merged, report.Notified))
	if report.Woken > 0 || report.Expired > 0 {
		ux.Muted(fmt.Sprintf("sweep: %d woken, %d expired", report.Woken, report.Expired))
	}
	for _, ce := range report.CollectorErrors {
		ux.Warning(fmt.Sprintf("collector %s: %s", ce.Source, ce.Err))
	}
}

func runPending(cmd *cobra.Command, args []string) {
	var resp struct {
		Situations []*situation.Situation `json:"situations"`
		Count      int                    `json:"count"`
	}
	path := "/v1/situations?min_priority=" + minPriority
	if err := callAPI(http.MethodGet, path, nil, &resp); err != nil {
		fail(err)
	}

	if resp.Count == 0 {
		ux.Success("Nothing pending")
		return
	}
	ux.Title(fmt.Sprintf("%d pending situation(s)", resp.Count))
	for _, sit := range resp.Situations {
		printSituation(sit)
	}
}

func runRespond(cmd *cobra.Command, args []string) {
	body := map[string]string{}
	switch {
	case respondDismiss:
		body["status"] = "DISMISSED"
	case respondSnooze != "":
		body["status"] = "SNOOZED"
		body["snooze_for"] = respondSnooze
	case respondAction != "":
		body["status"] = "ACTIONED"
		body["action_type"] = respondAction
	default:
		fail(fmt.Errorf("pick one of --action, --dismiss, or --snooze"))
	}

	var sit situation.Situation
	path := "/v1/situations/" + args[0] + "/respond"
	if err := callAPI(http.MethodPost, path, body, &sit); err != nil {
		fail(err)
	}
	ux.Success(fmt.Sprintf("Situation %s is now %s", sit.ID, sit.Status))
}

func runDigest(cmd *cobra.Command, args []string) {
	var resp struct {
		Since      time.Time              `json:"since"`
		Situations []*situation.Situation `json:"situations"`
		Count      int                    `json:"count"`
	}
	path := "/v1/digest?since=" + digestSince
	if err := callAPI(http.MethodGet, path, nil, &resp); err != nil {
		fail(err)
	}

	ux.Title(fmt.Sprintf("Digest since %s: %d situation(s)",
		resp.Since.Local().Format("Jan 2 15:04"), resp.Count))
	for _, sit := range resp.Situations {
		printSituation(sit)
	}
}

func runStats(cmd *cobra.Command, args []string) {
	var stats struct {
		Total     int            `json:"total"`
		ByStatus  map[string]int `json:"by_status"`
		ByType    map[string]int `json:"by_type"`
		Responses map[string]int `json:"responses"`
	}
	path := "/v1/stats"
	if statsPeriod != "" {
		path += "?period=" + statsPeriod
	}
	if err := callAPI(http.MethodGet, path, nil, &stats); err != nil {
		fail(err)
	}

	ux.Title(fmt.Sprintf("%d situation(s)", stats.Total))
	for status, n := range stats.ByStatus {
		ux.Info(fmt.Sprintf("%-12s %d", status, n))
	}
	if len(stats.ByType) > 0 {
		ux.Muted("By type:")
		for typ, n := range stats.ByType {
			ux.Muted(fmt.Sprintf("  %-28s %d", typ, n))
		}
	}
	if len(stats.Responses) > 0 {
		ux.Muted("Responses recorded:")
		for r, n := range stats.Responses {
			ux.Muted(fmt.Sprintf("  %-12s %d", r, n))
		}
	}
}

// printSituation renders one situation block for pending and digest output.
func printSituation(sit *situation.Situation) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", sit.Summary)
	fmt.Fprintf(&b, "priority: %s   status: %s   id: %s", sit.Priority, sit.Status, sit.ID)
	for _, a := range sit.Actions {
		fmt.Fprintf(&b, "\n  -> [%s] %s", a.Type, a.Description)
	}
	ux.Box(fmt.Sprintf("%s (%s)", sit.Title, sit.Type), b.String())
}
