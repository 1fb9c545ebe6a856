// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package proxy

import "net/http"

// lazyWriter defers header commitment until the first successful
// write. Errors raised before any byte is written can therefore still
// carry their true status code instead of a premature 200 with
// streaming headers.
type lazyWriter struct {
	w         http.ResponseWriter
	staged    http.Header
	committed bool
}

func newLazyWriter(w http.ResponseWriter) *lazyWriter {
	return &lazyWriter{w: w}
}

// Stage records the headers to send on commit. Replaces any prior
// staging; a no-op after commit.
func (l *lazyWriter) Stage(h http.Header) {
	if l.committed {
		return
	}
	l.staged = h
}

// Committed reports whether the status line is on the wire.
func (l *lazyWriter) Committed() bool { return l.committed }

// Write commits staged headers with status 200 on first use, then
// writes and flushes p.
func (l *lazyWriter) Write(p []byte) (int, error) {
	if !l.committed {
		for k, vs := range l.staged {
			for _, v := range vs {
				l.w.Header().Add(k, v)
			}
		}
		l.w.WriteHeader(http.StatusOK)
		l.committed = true
	}
	n, err := l.w.Write(p)
	if err != nil {
		return n, err
	}
	if f, ok := l.w.(http.Flusher); ok {
		f.Flush()
	}
	return n, nil
}
