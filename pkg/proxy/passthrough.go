// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package proxy

import (
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/types"
)

// hopHeaders are stripped in both directions.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// passthrough reverse-proxies a non-chat provider path upstream with
// the agent segment already stripped. It never enters the pipeline:
// no policy, no record.
func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request, provider types.Provider, tail string) {
	target := strings.TrimRight(h.baseURL(provider), "/") + tail
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	out.Header = r.Header.Clone()
	out.Header.Del("Host")
	for _, name := range hopHeaders {
		out.Header.Del(name)
	}

	resp, err := h.client.Do(out)
	if err != nil {
		counters.upstreamErrors.Add(1)
		writeError(w, mapError(&UpstreamError{Err: err}))
		return
	}
	defer resp.Body.Close()

	for name, vs := range resp.Header {
		if isHopHeader(name) {
			continue
		}
		for _, v := range vs {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(flushWriter{w}, resp.Body); err != nil {
		h.logger.Debug("passthrough copy interrupted", zap.Error(err))
	}
}

func isHopHeader(name string) bool {
	for _, hh := range hopHeaders {
		if strings.EqualFold(name, hh) {
			return true
		}
	}
	return false
}

// flushWriter flushes after every chunk so streamed passthrough
// responses are not buffered.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err == nil {
		if fl, ok := f.w.(http.Flusher); ok {
			fl.Flush()
		}
	}
	return n, err
}
