// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package proxy

import (
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/internal/log"
)

// Process-wide counters. These and the pricing cache are the only
// cross-request shared state in the pipeline.
var counters struct {
	requests         atomic.Uint64
	refusals         atomic.Uint64
	blockedTools     atomic.Uint64
	limitRejections  atomic.Uint64
	upstreamErrors   atomic.Uint64
	streamInterrupts atomic.Uint64
}

// Counters is a point-in-time snapshot of the proxy counters.
type Counters struct {
	Requests         uint64 `json:"requests"`
	Refusals         uint64 `json:"refusals"`
	BlockedTools     uint64 `json:"blocked_tools"`
	LimitRejections  uint64 `json:"limit_rejections"`
	UpstreamErrors   uint64 `json:"upstream_errors"`
	StreamInterrupts uint64 `json:"stream_interrupts"`
}

// Metrics snapshots the process-wide proxy counters.
func Metrics() Counters {
	return Counters{
		Requests:         counters.requests.Load(),
		Refusals:         counters.refusals.Load(),
		BlockedTools:     counters.blockedTools.Load(),
		LimitRejections:  counters.limitRejections.Load(),
		UpstreamErrors:   counters.upstreamErrors.Load(),
		StreamInterrupts: counters.streamInterrupts.Load(),
	}
}

// timingTransport observes every upstream round trip: duration on
// success, the error otherwise.
type timingTransport struct {
	base http.RoundTripper
}

func (t *timingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn("upstream request failed",
			zap.String("host", req.URL.Host),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}
	log.Debug("upstream request",
		zap.String("host", req.URL.Host),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed))
	return resp, nil
}
