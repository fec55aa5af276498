// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// =============================================================================
// Rules File Watcher
// =============================================================================

// Watcher serves the current rule registry and hot-reloads it when an
// override rules file changes on disk.
//
// # Description
//
// The watcher never swaps in a broken table: a reload that fails to parse
// or validate is logged and the previous registry stays active. Cycles
// read the registry through Registry(), so a swap takes effect at the next
// cycle boundary without interrupting one in flight.
//
// # Thread Safety
//
// Registry() and the reload path are safe for concurrent use.
type Watcher struct {
	path string

	mu       sync.RWMutex
	registry *Registry
}

// NewWatcher creates a watcher seeded with the embedded default registry.
// If path is non-empty and the file exists, it is loaded immediately;
// a load failure at construction is returned, not ignored, because a
// deployment that ships a broken override should fail fast.
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{path: path, registry: DefaultRegistry()}
	if path == "" {
		return w, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return nil, fmt.Errorf("read rules override %s: %w", path, err)
	}
	reg, err := LoadRegistry(raw)
	if err != nil {
		return nil, fmt.Errorf("load rules override %s: %w", path, err)
	}
	w.registry = reg
	return w, nil
}

// Registry returns the active registry.
func (w *Watcher) Registry() *Registry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.registry
}

// Detect runs a detection pass against the active registry, so a Watcher
// can stand in wherever a plain Detector is expected. The registry is
// resolved once per call; a reload mid-pass does not mix rule tables.
func (w *Watcher) Detect(signals []signal.Signal) Result {
	return NewDetector(w.Registry()).Detect(signals)
}

// Watch blocks until ctx is cancelled, reloading the override file on
// every write or create event. No-op when the watcher has no path.
func (w *Watcher) Watch(ctx context.Context) error {
	if w.path == "" {
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory, not the file: editors replace files via rename,
	// which drops a direct file watch.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("detect: rules watcher error", "error", err)
		}
	}
}

// reload re-reads the override file and swaps the registry on success.
func (w *Watcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		slog.Warn("detect: rules reload failed, keeping previous table",
			"path", w.path,
			"error", err,
		)
		return
	}
	reg, err := LoadRegistry(raw)
	if err != nil {
		slog.Warn("detect: rules reload rejected, keeping previous table",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.mu.Lock()
	w.registry = reg
	w.mu.Unlock()

	slog.Info("detect: rules table reloaded", "path", w.path, "rules", len(reg.rules))
}
