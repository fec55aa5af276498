// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

// Schema defines the two sentinel tables.
//
// The partial unique index on situations(fingerprint) is the dedup
// invariant: at most one non-terminal (PENDING or SNOOZED) situation may
// exist per fingerprint. Terminal rows keep their fingerprint for history
// without blocking a re-detection from creating a fresh situation.
//
// response_records is append-only; eligibility aggregation reads it with
// COUNT, nothing ever updates or deletes a row.
const Schema = `
CREATE TABLE IF NOT EXISTS situations (
    id             TEXT PRIMARY KEY,
    situation_type TEXT NOT NULL,
    title          TEXT NOT NULL,
    summary        TEXT NOT NULL DEFAULT '',
    priority       INTEGER NOT NULL DEFAULT 0,
    fingerprint    TEXT NOT NULL,
    status         TEXT NOT NULL CHECK(status IN ('PENDING','ACTIONED','DISMISSED','SNOOZED','EXPIRED')),
    signal_refs    TEXT NOT NULL DEFAULT '[]',
    actions        TEXT NOT NULL DEFAULT '[]',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,
    expires_at     INTEGER NOT NULL,
    snoozed_until  INTEGER,
    notified_at    INTEGER,
    actioned_at    INTEGER,
    action_taken   TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_situations_active_fingerprint
    ON situations(fingerprint) WHERE status IN ('PENDING','SNOOZED');

CREATE INDEX IF NOT EXISTS idx_situations_status ON situations(status);
CREATE INDEX IF NOT EXISTS idx_situations_type ON situations(situation_type);

CREATE TABLE IF NOT EXISTS response_records (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    situation_type TEXT NOT NULL,
    action_type    TEXT NOT NULL,
    response       TEXT NOT NULL CHECK(response IN ('accepted','rejected','ignored')),
    recorded_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_pair
    ON response_records(situation_type, action_type);
`
