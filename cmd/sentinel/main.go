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
	"os"

	"github.com/AleutianAI/AleutianSentinel/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	apiBaseURL       string
	snapshotPath     string
	minPriority      string
	digestSince      string
	statsPeriod      string
	respondAction    string
	respondDismiss   bool
	respondSnooze    string
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "sentinel",
		Short: "A cli to run and query the Aleutian Sentinel situation engine",
		Long: `Sentinel watches your calendar, inbox, meetings, tasks, and the
wider world, correlates what it sees into situations, and suggests what
to do about them.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the sentinel service: scheduled cycles plus the HTTP API",
		Run:   runServe, // Defined in cmd_serve.go
	}

	cycleCmd = &cobra.Command{
		Use:   "cycle",
		Short: "Trigger one collection cycle on a running sentinel",
		Run:   runCycle, // Defined in cmd_situations.go
	}

	pendingCmd = &cobra.Command{
		Use:   "pending",
		Short: "List situations awaiting a decision",
		Run:   runPending, // Defined in cmd_situations.go
	}

	respondCmd = &cobra.Command{
		Use:   "respond [situation_id]",
		Short: "Act on, dismiss, or snooze a situation",
		Args:  cobra.ExactArgs(1),
		Run:   runRespond, // Defined in cmd_situations.go
	}

	digestCmd = &cobra.Command{
		Use:   "digest",
		Short: "Show everything that changed recently, decided or not",
		Run:   runDigest, // Defined in cmd_situations.go
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate situation and response counts",
		Run:   runStats, // Defined in cmd_situations.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api",
		envOr("SENTINEL_API_URL", "http://localhost:12300"),
		"Base URL of the sentinel API")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"UX personality level (full/standard/minimal/machine)")

	serveCmd.Flags().StringVar(&snapshotPath, "snapshot",
		envOr("SENTINEL_SNAPSHOT_PATH", "snapshot.yaml"),
		"Path to the domain snapshot file the collectors read")

	pendingCmd.Flags().StringVar(&minPriority, "min-priority", "low",
		"Hide situations below this priority (low/medium/high/critical)")

	respondCmd.Flags().StringVar(&respondAction, "action", "",
		"Mark the situation actioned with this action type")
	respondCmd.Flags().BoolVar(&respondDismiss, "dismiss", false,
		"Dismiss the situation")
	respondCmd.Flags().StringVar(&respondSnooze, "snooze", "",
		"Snooze the situation for a duration, e.g. 4h")

	digestCmd.Flags().StringVar(&digestSince, "since", "24h",
		"Window for the digest: RFC 3339 instant or duration")

	statsCmd.Flags().StringVar(&statsPeriod, "period", "",
		"Restrict stats to a trailing window, e.g. 168h (default: all time)")

	rootCmd.AddCommand(serveCmd, cycleCmd, pendingCmd, respondCmd, digestCmd, statsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
