// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/internal/log"
)

// Sentinel errors recognized by the mapper.
var (
	ErrLimitExceeded = errors.New("token cost limit exceeded")
	ErrAgentNotFound = errors.New("agent not found")
)

// UpstreamError carries a provider failure. StatusCode 0 means the
// request never produced a response (transport failure).
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusError is the mapped, client-facing form of a pipeline failure
// when response headers are not yet committed.
type StatusError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *StatusError) Error() string { return e.Message }

// mapError converts any pipeline failure into a StatusError. Upstream
// status codes propagate verbatim when valid; everything unexpected
// collapses to a sanitized 500.
func mapError(err error) *StatusError {
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}

	if errors.Is(err, ErrLimitExceeded) {
		return &StatusError{
			StatusCode: http.StatusTooManyRequests,
			Type:       "rate_limit_exceeded",
			Code:       "token_cost_limit_exceeded",
			Message:    "The agent's token cost limit has been exceeded.",
		}
	}
	if errors.Is(err, ErrAgentNotFound) {
		return &StatusError{
			StatusCode: http.StatusNotFound,
			Type:       "not_found_error",
			Code:       "agent_not_found",
			Message:    "No agent matches the requested id.",
		}
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		status := ue.StatusCode
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}
		msg := "The upstream provider request failed."
		if len(ue.Body) > 0 {
			msg = string(ue.Body)
		}
		return &StatusError{
			StatusCode: status,
			Type:       "api_error",
			Code:       "upstream_error",
			Message:    msg,
		}
	}

	return &StatusError{
		StatusCode: http.StatusInternalServerError,
		Type:       "api_error",
		Code:       "internal_error",
		Message:    "An internal error occurred while processing the request.",
	}
}

// writeError sends the pre-commit JSON error body.
func writeError(w http.ResponseWriter, se *StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.StatusCode)
	payload := map[string]interface{}{
		"error": map[string]interface{}{
			"type":    se.Type,
			"code":    se.Code,
			"message": se.Message,
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn("writing error response", zap.Error(err))
	}
}

// writeStreamError emits the single post-commit SSE error event. The
// HTTP status is already on the wire and stays 200.
func writeStreamError(w *lazyWriter, message string) {
	payload, _ := json.Marshal(map[string]string{
		"type":    "api_error",
		"message": message,
	})
	_, _ = w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload)))
}
