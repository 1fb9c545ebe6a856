// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresBackend wraps a lib/pq connection pool.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgres opens a PostgreSQL pool and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres backend requires a DSN")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresBackend{db: db}, nil
}

func (b *PostgresBackend) DB() *sql.DB    { return b.db }
func (b *PostgresBackend) Driver() string { return DriverPostgres }
func (b *PostgresBackend) Close() error   { return b.db.Close() }

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *PostgresBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrating postgres schema: %w", err)
	}
	return nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS interactions (
	id                 TEXT PRIMARY KEY,
	profile_id         TEXT NOT NULL,
	external_agent_id  TEXT NOT NULL DEFAULT '',
	execution_id       TEXT NOT NULL DEFAULT '',
	user_id            TEXT NOT NULL DEFAULT '',
	session_id         TEXT NOT NULL DEFAULT '',
	session_source     TEXT NOT NULL DEFAULT '',
	type               TEXT NOT NULL,
	request            BYTEA,
	processed_request  BYTEA,
	response           BYTEA,
	model              TEXT NOT NULL DEFAULT '',
	baseline_model     TEXT NOT NULL DEFAULT '',
	input_tokens       INTEGER,
	output_tokens      INTEGER,
	cost               DOUBLE PRECISION,
	baseline_cost      DOUBLE PRECISION,
	toon_tokens_before INTEGER,
	toon_tokens_after  INTEGER,
	toon_cost_savings  DOUBLE PRECISION,
	toon_skip_reason   TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions (created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_profile_id ON interactions (profile_id);

CREATE TABLE IF NOT EXISTS token_prices (
	model              TEXT PRIMARY KEY,
	provider           TEXT NOT NULL,
	input_per_million  DOUBLE PRECISION NOT NULL,
	output_per_million DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS optimization_rules (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	provider        TEXT NOT NULL,
	min_tokens      INTEGER,
	max_tokens      INTEGER,
	requires_tools  BOOLEAN,
	forbids_tools   BOOLEAN,
	target_model    TEXT NOT NULL,
	priority        INTEGER NOT NULL DEFAULT 0,
	enabled         BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_rules_org_provider ON optimization_rules (organization_id, provider);
`
