// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/internal/log"
)

// Watcher hot-reloads the feature flags when the config file changes.
// Only the features section is live; everything else requires a
// restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	done    chan struct{}

	mu       sync.RWMutex
	features FeaturesConfig
}

// Watch starts watching cfg's file. When the gateway runs without a
// config file there is nothing to watch; the returned Watcher then
// just serves the initial flags.
func Watch(cfg *Config) (*Watcher, error) {
	w := &Watcher{
		path:     cfg.File(),
		logger:   log.With(zap.String("component", "config_watcher")),
		done:     make(chan struct{}),
		features: cfg.Features,
	}
	if w.path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which
	// drops a watch set on the file itself.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = fw

	go w.run()
	return w, nil
}

// Features returns the current flag set. Safe for concurrent use; the
// proxy calls this per request.
func (w *Watcher) Features() FeaturesConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.features
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping current flags", zap.Error(err))
		return
	}

	w.mu.Lock()
	changed := cfg.Features != w.features
	w.features = cfg.Features
	w.mu.Unlock()

	if changed {
		w.logger.Info("feature flags reloaded",
			zap.Bool("toon_compression", cfg.Features.ToonCompression),
			zap.Bool("dual_llm", cfg.Features.DualLLM),
			zap.Bool("image_conversion", cfg.Features.ImageConversion))
	}
}
