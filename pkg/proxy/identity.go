// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package proxy

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/internal/log"
)

// Identity is the resolved caller context for one request. Every field
// may be empty; missing identity is never fatal.
type Identity struct {
	UserID          string
	SessionID       string
	SessionSource   string
	ExecutionID     string
	ExternalAgentID string
}

// Headers consumed by the resolver.
const (
	headerUserID          = "X-Archestra-User-Id"
	headerUserEmail       = "x-openwebui-user-email"
	headerExecutionID     = "X-Archestra-Execution-Id"
	headerExternalAgentID = "X-Archestra-Agent-Id"
)

// sessionHeaders in precedence order, each tagged with the source
// recorded on the interaction.
var sessionHeaders = []struct {
	name   string
	source string
}{
	{"X-Archestra-Session-Id", "archestra"},
	{"X-Session-Id", "generic"},
	{"X-OpenWebUI-Chat-Id", "openwebui"},
}

// ResolveIdentity derives the caller identity from request headers.
// The explicit user-id header wins; otherwise the forwarded email is
// looked up through users (when wired). The result is a pure function
// of the headers and the resolver's answer.
func ResolveIdentity(ctx context.Context, h http.Header, users UserResolver) Identity {
	id := Identity{
		UserID:          h.Get(headerUserID),
		ExecutionID:     h.Get(headerExecutionID),
		ExternalAgentID: h.Get(headerExternalAgentID),
	}

	if id.UserID == "" && users != nil {
		if email := h.Get(headerUserEmail); email != "" {
			userID, err := users.UserIDByEmail(ctx, email)
			if err != nil {
				log.Debug("user lookup by email failed", zap.Error(err))
			} else {
				id.UserID = userID
			}
		}
	}

	for _, sh := range sessionHeaders {
		if v := h.Get(sh.name); v != "" {
			id.SessionID = v
			id.SessionSource = sh.source
			break
		}
	}
	return id
}
