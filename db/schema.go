// Copyright (c) 2025 Markus Bergmann.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Single-use voting tokens. used flips false->true exactly once and
-- rows are never deleted.
CREATE TABLE IF NOT EXISTS tokens (
    token TEXT PRIMARY KEY,
    school TEXT NOT NULL CHECK (school IN ('primary', 'secondary')),
    used BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_tokens_school ON tokens(school);

-- Registered candidate names per school
CREATE TABLE IF NOT EXISTS candidates (
    id SERIAL PRIMARY KEY,
    school TEXT NOT NULL CHECK (school IN ('primary', 'secondary')),
    name TEXT NOT NULL,
    UNIQUE (school, name)
);

-- One row per ballot mark. token references the redeeming token but is
-- not a foreign key: tokens outlive votes and votes are never cascaded.
CREATE TABLE IF NOT EXISTS votes (
    id SERIAL PRIMARY KEY,
    token TEXT NOT NULL,
    school TEXT NOT NULL CHECK (school IN ('primary', 'secondary')),
    choice TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_votes_token ON votes(token);
CREATE INDEX IF NOT EXISTS idx_votes_school_choice ON votes(school, choice);

-- Hash-chained audit log, one row per accepted redemption. Append-only:
-- no update, no delete.
CREATE TABLE IF NOT EXISTS vote_audit (
    id SERIAL PRIMARY KEY,
    token TEXT NOT NULL,
    school TEXT NOT NULL,
    choices TEXT[] NOT NULL,
    choice_count INT NOT NULL,
    submitted_at TIMESTAMP NOT NULL,
    user_agent TEXT,
    ip_hash TEXT,
    request_id TEXT NOT NULL UNIQUE,
    hmac TEXT NOT NULL,
    chain_prev_hash TEXT NOT NULL DEFAULT '',
    chain_hash TEXT NOT NULL
);

-- Plain append log of privileged admin actions (no chaining)
CREATE TABLE IF NOT EXISTS admin_audit (
    id SERIAL PRIMARY KEY,
    action TEXT NOT NULL,
    meta JSONB NOT NULL DEFAULT '{}'::jsonb,
    at TIMESTAMP NOT NULL DEFAULT NOW()
);
`
