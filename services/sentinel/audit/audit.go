// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit provides a short-lived cache of raw signal batches.
//
// # Description
//
// Signals are transient: they are consumed by the detector and
// discarded. To answer "why did this situation fire" after the fact, the
// orchestrator writes each cycle's raw signal batch to an embedded
// BadgerDB with a native TTL, so the cache self-expires without a sweep
// job. Batches are stored as opaque JSON; the audit surface replays them
// for inspection, never back into the pipeline.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// ErrBatchNotFound is returned when no batch exists for a cycle ID
// (including batches that have already expired).
var ErrBatchNotFound = errors.New("audit: batch not found")

const keyPrefix = "batch/"

// =============================================================================
// Configuration
// =============================================================================

// Config holds configuration for the audit cache.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// TTL is how long a batch stays readable. Badger expires the entry
	// natively; no sweep job is involved.
	TTL time.Duration

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns production settings: 72h batch retention,
// durable writes, GC every 5 minutes.
func DefaultConfig() Config {
	return Config{
		TTL:            72 * time.Hour,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for tests: in-memory, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		TTL:      72 * time.Hour,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Cache
// =============================================================================

// BatchRecord is one cycle's cached signal batch. Signals stay as the
// JSON written at collection time; the audit surface renders them as-is.
type BatchRecord struct {
	CycleID     string          `json:"cycle_id"`
	CollectedAt time.Time       `json:"collected_at"`
	Count       int             `json:"count"`
	Signals     json.RawMessage `json:"signals"`
}

// Cache is a TTL-expiring store of signal batches.
type Cache struct {
	db  *badger.DB
	cfg Config

	gcDone chan struct{}
	gcStop chan struct{}
}

// Open opens the audit cache, creating the directory if needed, and
// starts the value log GC loop when configured.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("audit: path is required for persistent cache")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("audit: TTL must be positive")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("audit: create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("audit: open cache: %w", err)
	}

	c := &Cache{db: db, cfg: cfg}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.gcStop = make(chan struct{})
		c.gcDone = make(chan struct{})
		go c.runGC()
	}
	return c, nil
}

// Close stops GC and closes the database. Safe to call once.
func (c *Cache) Close() error {
	if c.gcStop != nil {
		close(c.gcStop)
		<-c.gcDone
	}
	return c.db.Close()
}

func (c *Cache) runGC() {
	defer close(c.gcDone)

	ticker := time.NewTicker(c.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.gcStop:
			return
		case <-ticker.C:
			err := c.db.RunValueLogGC(c.cfg.GCDiscardRatio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && c.cfg.Logger != nil {
				c.cfg.Logger.Warn("audit cache GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// WriteBatch caches one cycle's raw signals under the configured TTL.
//
// # Inputs
//   - ctx: checked before the write starts.
//   - cycleID: the cycle that collected the batch.
//   - collectedAt: the cycle's reference instant; keys sort by it.
//   - signals: the raw batch. An empty batch is cached too, so audits
//     can distinguish "nothing collected" from "cache expired".
func (c *Cache) WriteBatch(ctx context.Context, cycleID string, collectedAt time.Time, signals []signal.Signal) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("audit: context cancelled: %w", err)
	}

	raw, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("audit: marshal batch: %w", err)
	}
	rec := BatchRecord{
		CycleID:     cycleID,
		CollectedAt: collectedAt.UTC(),
		Count:       len(signals),
		Signals:     raw,
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(batchKey(collectedAt, cycleID), val).WithTTL(c.cfg.TTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("audit: write batch: %w", err)
	}
	return nil
}

// Batch returns the cached batch for one cycle ID.
func (c *Cache) Batch(ctx context.Context, cycleID string) (*BatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("audit: context cancelled: %w", err)
	}

	var found *BatchRecord
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(keyPrefix)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			rec, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			if rec.CycleID == cycleID {
				found = rec
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrBatchNotFound
	}
	return found, nil
}

// RecentBatches returns up to limit batches, newest first.
func (c *Cache) RecentBatches(ctx context.Context, limit int) ([]*BatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("audit: context cancelled: %w", err)
	}
	if limit <= 0 {
		return nil, nil
	}

	var out []*BatchRecord
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration: seek past the prefix range, walk backwards.
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			rec, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			out = append(out, rec)
			if len(out) == limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// keyTimeLayout is fixed-width so keys sort lexically by time.
// RFC3339Nano trims trailing zeros and would break the ordering.
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// batchKey orders entries chronologically within the prefix.
func batchKey(collectedAt time.Time, cycleID string) []byte {
	return []byte(keyPrefix + collectedAt.UTC().Format(keyTimeLayout) + "/" + cycleID)
}

func decodeItem(item *badger.Item) (*BatchRecord, error) {
	var rec BatchRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("audit: decode batch: %w", err)
	}
	return &rec, nil
}
