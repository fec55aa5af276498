// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestDefaultLoggerUsable(t *testing.T) {
	logger := Default()
	defer logger.Close()

	require.NotNil(t, logger.Slog())
	logger.Info("scheduler started", "interval", "15m")
}

func TestFileLoggingWritesDailyJSONFile(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "sentinel",
	})
	logger.Info("cycle complete", "candidates", 2)
	require.NoError(t, logger.Close())

	lines := logLines(t, dir, "sentinel")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "cycle complete", entry["msg"])
	assert.Equal(t, "sentinel", entry["service"])
	assert.Equal(t, float64(2), entry["candidates"])
}

func TestFileLoggingCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "sentinel"})
	logger.Info("started")
	require.NoError(t, logger.Close())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileLoggingDefaultsServiceName(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{Level: LevelInfo, LogDir: dir})
	logger.Info("started")
	require.NoError(t, logger.Close())

	name := "sentinel_" + time.Now().Format("2006-01-02") + ".log"
	_, err := os.Stat(filepath.Join(dir, name))
	assert.NoError(t, err)
}

func TestLevelFiltersFileOutput(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{Level: LevelWarn, LogDir: dir, Service: "sentinel"})
	logger.Info("filtered out")
	logger.Warn("collector slow", "collector", "weather")
	require.NoError(t, logger.Close())

	lines := logLines(t, dir, "sentinel")
	require.Len(t, lines, 1)
	assert.Contains(t, string(lines[0]), "collector slow")
}

func TestWithAddsAttributesToChildOnly(t *testing.T) {
	dir := t.TempDir()

	parent := New(Config{Level: LevelInfo, LogDir: dir, Service: "sentinel"})
	child := parent.With("cycle_id", "c-123")
	child.Info("detection complete")
	parent.Info("idle")
	require.NoError(t, parent.Close())

	lines := logLines(t, dir, "sentinel")
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "c-123")
	assert.NotContains(t, string(lines[1]), "c-123")
}

func TestExporterReceivesEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Service:  "sentinel",
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Info("notification sent", "channel", "webhook")

	require.Eventually(t, func() bool {
		return len(exporter.Entries()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries := exporter.Entries()
	assert.Equal(t, "notification sent", entries[0].Message)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, "sentinel", entries[0].Service)
	assert.Equal(t, "webhook", entries[0].Attrs["channel"])
}

func TestExporterSkipsFilteredLevels(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Service:  "sentinel",
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Debug("verbose detail")
	logger.Info("routine event")
	logger.Error("store write failed")

	require.Eventually(t, func() bool {
		return len(exporter.Entries()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "store write failed", exporter.Entries()[0].Message)
}

func TestCloseIsSafeWithoutFileOrExporter(t *testing.T) {
	logger := New(Config{Level: LevelInfo})
	assert.NoError(t, logger.Close())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".sentinel/logs"), expandPath("~/.sentinel/logs"))
	assert.Equal(t, "/var/log/sentinel", expandPath("/var/log/sentinel"))
	assert.Equal(t, "relative/logs", expandPath("relative/logs"))
}

func TestArgsToMap(t *testing.T) {
	m := argsToMap([]any{"situation_id", "s-1", "count", 3})
	assert.Equal(t, "s-1", m["situation_id"])
	assert.Equal(t, 3, m["count"])

	// Odd trailing arg and non-string keys are dropped.
	m = argsToMap([]any{"key", "value", "dangling"})
	assert.Len(t, m, 1)
	m = argsToMap([]any{42, "value"})
	assert.Empty(t, m)
}

// logLines reads today's log file for service and returns its non-empty
// lines.
func logLines(t *testing.T, dir, service string) [][]byte {
	t.Helper()
	name := service + "_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}
