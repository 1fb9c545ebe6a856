// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package backend

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// defaultSQLitePath is used when no DSN is configured.
const defaultSQLitePath = "gateway.db"

// SQLiteBackend wraps a modernc.org/sqlite database. A single open
// connection sidesteps SQLite's writer lock.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the SQLite database at dsn.
func NewSQLite(dsn string) (*SQLiteBackend, error) {
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) DB() *sql.DB    { return b.db }
func (b *SQLiteBackend) Driver() string { return DriverSQLite }
func (b *SQLiteBackend) Close() error   { return b.db.Close() }

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLiteBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS interactions (
	id                 TEXT PRIMARY KEY,
	profile_id         TEXT NOT NULL,
	external_agent_id  TEXT NOT NULL DEFAULT '',
	execution_id       TEXT NOT NULL DEFAULT '',
	user_id            TEXT NOT NULL DEFAULT '',
	session_id         TEXT NOT NULL DEFAULT '',
	session_source     TEXT NOT NULL DEFAULT '',
	type               TEXT NOT NULL,
	request            BLOB,
	processed_request  BLOB,
	response           BLOB,
	model              TEXT NOT NULL DEFAULT '',
	baseline_model     TEXT NOT NULL DEFAULT '',
	input_tokens       INTEGER,
	output_tokens      INTEGER,
	cost               REAL,
	baseline_cost      REAL,
	toon_tokens_before INTEGER,
	toon_tokens_after  INTEGER,
	toon_cost_savings  REAL,
	toon_skip_reason   TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions (created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_profile_id ON interactions (profile_id);

CREATE TABLE IF NOT EXISTS token_prices (
	model              TEXT PRIMARY KEY,
	provider           TEXT NOT NULL,
	input_per_million  REAL NOT NULL,
	output_per_million REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS optimization_rules (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	provider        TEXT NOT NULL,
	min_tokens      INTEGER,
	max_tokens      INTEGER,
	requires_tools  INTEGER,
	forbids_tools   INTEGER,
	target_model    TEXT NOT NULL,
	priority        INTEGER NOT NULL DEFAULT 0,
	enabled         INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_rules_org_provider ON optimization_rules (organization_id, provider);
`
