// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists situations and response records in SQLite.
//
// # Description
//
// The store owns the durable half of the situation lifecycle. It keeps the
// dedup invariant in the schema itself (a partial unique index over active
// fingerprints) so that no code path, present or future, can create two
// live situations for the same fingerprint. Structured sub-objects
// (signal refs, actions) are stored as JSON columns; everything queried or
// filtered on gets its own column.
//
// # Assumptions
//
// The caller blank-imports a database/sql SQLite driver; this package
// pulls in modernc.org/sqlite itself so binaries get the pure-Go driver
// with no cgo toolchain required.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
)

// ErrDuplicateFingerprint is returned by Insert when another non-terminal
// situation already holds the fingerprint.
var ErrDuplicateFingerprint = errors.New("store: active situation with fingerprint exists")

// ErrNotFound is returned when no situation matches the given ID.
var ErrNotFound = errors.New("store: situation not found")

// Store is a SQLite-backed situation repository. Safe for concurrent use;
// database/sql serializes access and the WAL journal permits concurrent
// readers during writes.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sentinel database at path and
// applies the schema. Parent directories are created as needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Situations
// =============================================================================

const situationColumns = `id, situation_type, title, summary, priority, fingerprint,
	status, signal_refs, actions, created_at, updated_at, expires_at,
	snoozed_until, notified_at, actioned_at, action_taken`

// Insert stores a new situation. Returns ErrDuplicateFingerprint when a
// non-terminal situation with the same fingerprint already exists.
func (s *Store) Insert(ctx context.Context, sit *situation.Situation) error {
	refs, actions, err := encodeJSON(sit)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO situations (`+situationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sit.ID, sit.Type, sit.Title, sit.Summary, int(sit.Priority), sit.Fingerprint,
		string(sit.Status), refs, actions,
		sit.CreatedAt.Unix(), sit.UpdatedAt.Unix(), sit.ExpiresAt.Unix(),
		nullTime(sit.SnoozedUntil), nullTime(sit.NotifiedAt), nullTime(sit.ActionedAt),
		sit.ActionTaken)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateFingerprint
		}
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

// Update rewrites every mutable column of an existing situation.
func (s *Store) Update(ctx context.Context, sit *situation.Situation) error {
	refs, actions, err := encodeJSON(sit)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE situations SET
			title = ?, summary = ?, priority = ?, status = ?,
			signal_refs = ?, actions = ?, updated_at = ?, expires_at = ?,
			snoozed_until = ?, notified_at = ?, actioned_at = ?, action_taken = ?
		WHERE id = ?`,
		sit.Title, sit.Summary, int(sit.Priority), string(sit.Status),
		refs, actions, sit.UpdatedAt.Unix(), sit.ExpiresAt.Unix(),
		nullTime(sit.SnoozedUntil), nullTime(sit.NotifiedAt), nullTime(sit.ActionedAt),
		sit.ActionTaken, sit.ID)
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the situation with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*situation.Situation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+situationColumns+` FROM situations WHERE id = ?`, id)
	return scanSituation(row)
}

// GetActiveByFingerprint returns the non-terminal (PENDING or SNOOZED)
// situation for a fingerprint, or ErrNotFound when none is live.
func (s *Store) GetActiveByFingerprint(ctx context.Context, fingerprint string) (*situation.Situation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+situationColumns+` FROM situations
		WHERE fingerprint = ? AND status IN ('PENDING','SNOOZED')`, fingerprint)
	return scanSituation(row)
}

// ListPending returns PENDING situations at or above minPriority, ordered
// priority-descending then newest first.
func (s *Store) ListPending(ctx context.Context, minPriority signal.Priority) ([]*situation.Situation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+situationColumns+` FROM situations
		WHERE status = 'PENDING' AND priority >= ?
		ORDER BY priority DESC, created_at DESC`, int(minPriority))
	if err != nil {
		return nil, fmt.Errorf("store: list pending: %w", err)
	}
	return scanSituations(rows)
}

// Digest returns situations created or updated since the given time,
// newest activity first. Terminal rows are included so a digest can show
// what resolved as well as what appeared.
func (s *Store) Digest(ctx context.Context, since time.Time) ([]*situation.Situation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+situationColumns+` FROM situations
		WHERE updated_at >= ?
		ORDER BY updated_at DESC`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: digest: %w", err)
	}
	return scanSituations(rows)
}

// SweepExpired marks every non-terminal situation whose expiry has passed
// as EXPIRED and returns the IDs it transitioned. Idempotent: already
// terminal rows are never touched.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE situations SET status = 'EXPIRED', updated_at = ?
		WHERE status IN ('PENDING','SNOOZED') AND expires_at <= ?
		RETURNING id`, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: sweep expired: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: sweep expired: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WakeSnoozed returns SNOOZED situations whose snooze window has elapsed
// to PENDING, and reports the IDs it woke.
func (s *Store) WakeSnoozed(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE situations SET status = 'PENDING', snoozed_until = NULL, updated_at = ?
		WHERE status = 'SNOOZED' AND snoozed_until IS NOT NULL AND snoozed_until <= ?
		RETURNING id`, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: wake snoozed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: wake snoozed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// Stats
// =============================================================================

// Stats aggregates situation and response activity over one period.
type Stats struct {
	Total     int                        `json:"total"`
	ByStatus  map[situation.Status]int   `json:"by_status"`
	ByType    map[string]int             `json:"by_type"`
	Responses map[situation.Response]int `json:"responses"`
}

// CollectStats aggregates situations updated and responses recorded since
// the given time.
func (s *Store) CollectStats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{
		ByStatus:  make(map[situation.Status]int),
		ByType:    make(map[string]int),
		Responses: make(map[situation.Response]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, situation_type, COUNT(*) FROM situations
		WHERE updated_at >= ?
		GROUP BY status, situation_type`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status, sitType string
			n               int
		)
		if err := rows.Scan(&status, &sitType, &n); err != nil {
			return nil, fmt.Errorf("store: stats: %w", err)
		}
		stats.Total += n
		stats.ByStatus[situation.Status(status)] += n
		stats.ByType[sitType] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}

	respRows, err := s.db.QueryContext(ctx, `
		SELECT response, COUNT(*) FROM response_records
		WHERE recorded_at >= ?
		GROUP BY response`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: stats responses: %w", err)
	}
	defer respRows.Close()
	for respRows.Next() {
		var (
			resp string
			n    int
		)
		if err := respRows.Scan(&resp, &n); err != nil {
			return nil, fmt.Errorf("store: stats responses: %w", err)
		}
		stats.Responses[situation.Response(resp)] = n
	}
	return stats, respRows.Err()
}

// =============================================================================
// Response Records
// =============================================================================

// AppendResponse records one learning observation. The table is
// append-only; nothing in the codebase updates or deletes these rows.
func (s *Store) AppendResponse(ctx context.Context, rec situation.ResponseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO response_records (situation_type, action_type, response, recorded_at)
		VALUES (?, ?, ?, ?)`,
		rec.SituationType, rec.ActionType, string(rec.Response), rec.RecordedAt.Unix())
	if err != nil {
		return fmt.Errorf("store: append response: %w", err)
	}
	return nil
}

// ResponseCounts returns the accepted and total observation counts for a
// (situation_type, action_type) pair.
func (s *Store) ResponseCounts(ctx context.Context, situationType, actionType string) (accepted, total int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN response = 'accepted' THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM response_records
		WHERE situation_type = ? AND action_type = ?`,
		situationType, actionType).Scan(&accepted, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("store: response counts: %w", err)
	}
	return accepted, total, nil
}

// =============================================================================
// Row Mapping
// =============================================================================

func encodeJSON(sit *situation.Situation) (refs, actions string, err error) {
	refBytes, err := json.Marshal(sit.SignalRefs)
	if err != nil {
		return "", "", fmt.Errorf("store: marshal signal refs: %w", err)
	}
	actionBytes, err := json.Marshal(sit.Actions)
	if err != nil {
		return "", "", fmt.Errorf("store: marshal actions: %w", err)
	}
	return string(refBytes), string(actionBytes), nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSituation(row rowScanner) (*situation.Situation, error) {
	var (
		sit                               situation.Situation
		priority                          int
		status, refs, actions             string
		createdAt, updatedAt, expiresAt   int64
		snoozedUntil, notifiedAt, actedAt sql.NullInt64
	)
	err := row.Scan(&sit.ID, &sit.Type, &sit.Title, &sit.Summary, &priority,
		&sit.Fingerprint, &status, &refs, &actions,
		&createdAt, &updatedAt, &expiresAt,
		&snoozedUntil, &notifiedAt, &actedAt, &sit.ActionTaken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan: %w", err)
	}

	sit.Priority = signal.Priority(priority)
	sit.Status = situation.Status(status)
	sit.CreatedAt = time.Unix(createdAt, 0).UTC()
	sit.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	sit.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	sit.SnoozedUntil = fromUnix(snoozedUntil)
	sit.NotifiedAt = fromUnix(notifiedAt)
	sit.ActionedAt = fromUnix(actedAt)

	if err := json.Unmarshal([]byte(refs), &sit.SignalRefs); err != nil {
		return nil, fmt.Errorf("store: unmarshal signal refs: %w", err)
	}
	if err := json.Unmarshal([]byte(actions), &sit.Actions); err != nil {
		return nil, fmt.Errorf("store: unmarshal actions: %w", err)
	}
	return &sit, nil
}

func scanSituations(rows *sql.Rows) ([]*situation.Situation, error) {
	defer rows.Close()
	var out []*situation.Situation
	for rows.Next() {
		sit, err := scanSituation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sit)
	}
	return out, rows.Err()
}
