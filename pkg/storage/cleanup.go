// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/internal/log"
)

// defaultCleanupSchedule runs the retention sweep nightly, off-peak.
const defaultCleanupSchedule = "0 3 * * *"

// Cleaner periodically deletes interaction records older than the
// retention window. Call Stop during shutdown.
type Cleaner struct {
	store     *Store
	retention time.Duration
	cron      *cron.Cron
	logger    *zap.Logger
}

// StartCleanup schedules the retention sweep. retentionDays <= 0
// disables cleanup and returns nil. schedule is a cron expression;
// empty uses the nightly default.
func StartCleanup(store *Store, retentionDays int, schedule string) (*Cleaner, error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	if schedule == "" {
		schedule = defaultCleanupSchedule
	}

	c := &Cleaner{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		cron:      cron.New(),
		logger:    log.With(zap.String("component", "retention_cleanup")),
	}
	if _, err := c.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		c.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("scheduling retention cleanup %q: %w", schedule, err)
	}
	c.cron.Start()

	c.logger.Info("retention cleanup scheduled",
		zap.String("schedule", schedule),
		zap.Int("retention_days", retentionDays))
	return c, nil
}

// RunOnce performs a single retention sweep.
func (c *Cleaner) RunOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-c.retention)
	deleted, err := c.store.DeleteInteractionsBefore(ctx, cutoff)
	if err != nil {
		c.logger.Error("retention sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		c.logger.Info("retention sweep removed expired interactions",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (c *Cleaner) Stop() {
	if c == nil {
		return
	}
	<-c.cron.Stop().Done()
}
