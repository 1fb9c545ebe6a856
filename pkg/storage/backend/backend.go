// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package backend selects and opens the relational store behind
// pkg/storage. One backend per process; SQLite is the default,
// PostgreSQL serves multi-tenant deployments.
package backend

import (
	"context"
	"database/sql"
)

// Driver names accepted by the factory.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Backend is an open, migratable database handle.
type Backend interface {
	// DB is the shared connection pool.
	DB() *sql.DB

	// Driver reports which SQL dialect the handle speaks.
	Driver() string

	// Migrate brings the schema to the latest version. Idempotent.
	Migrate(ctx context.Context) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string

	// DSN is the driver-specific data source name. Empty means the
	// SQLite default file.
	DSN string
}
