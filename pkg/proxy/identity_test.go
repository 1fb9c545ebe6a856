// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package proxy

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeUsers struct {
	byEmail map[string]string
}

func (f *fakeUsers) UserIDByEmail(_ context.Context, email string) (string, error) {
	if id, ok := f.byEmail[email]; ok {
		return id, nil
	}
	return "", fmt.Errorf("no user for %s", email)
}

func TestResolveIdentity(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]string{"ada@example.com": "user-7"}}

	tests := []struct {
		name    string
		headers map[string]string
		want    Identity
	}{
		{
			name:    "explicit user id wins",
			headers: map[string]string{"X-Archestra-User-Id": "user-1", "x-openwebui-user-email": "ada@example.com"},
			want:    Identity{UserID: "user-1"},
		},
		{
			name:    "email fallback",
			headers: map[string]string{"x-openwebui-user-email": "ada@example.com"},
			want:    Identity{UserID: "user-7"},
		},
		{
			name:    "unknown email is not fatal",
			headers: map[string]string{"x-openwebui-user-email": "ghost@example.com"},
			want:    Identity{},
		},
		{
			name: "session precedence",
			headers: map[string]string{
				"X-Session-Id":           "generic-1",
				"X-Archestra-Session-Id": "arch-1",
				"X-OpenWebUI-Chat-Id":    "owui-1",
			},
			want: Identity{SessionID: "arch-1", SessionSource: "archestra"},
		},
		{
			name:    "openwebui session source",
			headers: map[string]string{"X-OpenWebUI-Chat-Id": "owui-1"},
			want:    Identity{SessionID: "owui-1", SessionSource: "openwebui"},
		},
		{
			name: "execution and external agent ids",
			headers: map[string]string{
				"X-Archestra-Execution-Id": "exec-1",
				"X-Archestra-Agent-Id":     "crew-42",
			},
			want: Identity{ExecutionID: "exec-1", ExternalAgentID: "crew-42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			got := ResolveIdentity(context.Background(), h, users)
			assert.Equal(t, tt.want, got)

			// Deterministic: same headers, same answer.
			assert.Equal(t, got, ResolveIdentity(context.Background(), h, users))
		})
	}
}

func TestResolveIdentityNoResolver(t *testing.T) {
	h := http.Header{}
	h.Set("x-openwebui-user-email", "ada@example.com")
	got := ResolveIdentity(context.Background(), h, nil)
	assert.Empty(t, got.UserID)
}
