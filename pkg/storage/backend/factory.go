// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package backend

import (
	"context"
	"fmt"
)

// New opens the backend cfg selects. An empty driver defaults to
// SQLite. ctx is used for PostgreSQL connection initialization and
// ignored by SQLite.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLite(cfg.DSN)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
