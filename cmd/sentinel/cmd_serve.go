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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/AleutianSentinel/pkg/logging"
	"github.com/AleutianAI/AleutianSentinel/pkg/ux"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/sources"
	"github.com/spf13/cobra"
)

// runServe starts the full sentinel service: the collection scheduler and
// the HTTP API, fed by a snapshot file on disk. The process runs until it
// receives SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) {
	level := logging.LevelInfo
	if os.Getenv("SENTINEL_DEBUG") != "" {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: "sentinel",
		LogDir:  os.Getenv("SENTINEL_LOG_DIR"),
	})
	defer logger.Close()

	cfg, err := sentinel.ConfigFromEnv()
	if err != nil {
		ux.Error(fmt.Sprintf("Invalid configuration: %v", err))
		os.Exit(1)
	}

	src, err := sources.Load(snapshotPath, logger.Slog())
	if err != nil {
		ux.Error(fmt.Sprintf("Failed to load snapshot %s: %v", snapshotPath, err))
		os.Exit(1)
	}
	if err := src.Watch(); err != nil {
		logger.Warn("snapshot watch unavailable, edits require a restart",
			"path", snapshotPath, "error", err)
	}
	defer src.Close()

	svc, err := sentinel.New(cfg, src.Collectors(), logger.Slog())
	if err != nil {
		ux.Error(fmt.Sprintf("Failed to start sentinel: %v", err))
		os.Exit(1)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ux.Success("Sentinel listening on port " + cfg.Port)
	if err := svc.Run(ctx); err != nil {
		ux.Error(fmt.Sprintf("Sentinel exited with error: %v", err))
		os.Exit(1)
	}
	ux.Info("Sentinel stopped")
}
