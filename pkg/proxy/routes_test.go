// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package proxy

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archestra-ai/gateway/pkg/types"
)

func TestChatEndpoint(t *testing.T) {
	tests := []struct {
		provider  types.Provider
		tail      string
		want      bool
		model     string
		streaming bool
	}{
		{provider: types.ProviderAnthropic, tail: "/v1/messages", want: true},
		{provider: types.ProviderAnthropic, tail: "/v1/models", want: false},
		{provider: types.ProviderOpenAI, tail: "/chat/completions", want: true},
		{provider: types.ProviderOpenAI, tail: "/v1/chat/completions", want: true},
		{provider: types.ProviderOpenAI, tail: "/models", want: false},
		{provider: types.ProviderCerebras, tail: "/chat/completions", want: true},
		{provider: types.ProviderGemini, tail: "/v1beta/models/gemini-2.0-flash:generateContent", want: true, model: "gemini-2.0-flash"},
		{provider: types.ProviderGemini, tail: "/v1beta/models/gemini-2.0-flash:streamGenerateContent", want: true, model: "gemini-2.0-flash", streaming: true},
		{provider: types.ProviderGemini, tail: "/v1beta/models", want: false},
		{provider: types.ProviderBedrock, tail: "/model/us.amazon.nova-pro-v1:0/converse", want: true, model: "us.amazon.nova-pro-v1:0"},
		{provider: types.ProviderBedrock, tail: "/model/us.amazon.nova-pro-v1:0/converse-stream", want: true, model: "us.amazon.nova-pro-v1:0", streaming: true},
		{provider: types.ProviderBedrock, tail: "/model/us.amazon.nova-pro-v1:0/invoke", want: false},
		{provider: types.ProviderCohere, tail: "/chat", want: true},
		{provider: types.ProviderCohere, tail: "/models", want: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider)+tt.tail, func(t *testing.T) {
			info, ok := chatEndpoint(tt.provider, tt.tail)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, tt.model, info.model)
				assert.Equal(t, tt.streaming, info.streaming)
			}
		})
	}
}

func TestClientAPIKey(t *testing.T) {
	anthropicKey := http.Header{}
	anthropicKey.Set("x-api-key", "sk-ant")
	assert.Equal(t, "sk-ant", clientAPIKey(anthropicKey, types.ProviderAnthropic))

	oauth := http.Header{}
	oauth.Set("Authorization", "Bearer tok-123")
	assert.Equal(t, "Bearer:tok-123", clientAPIKey(oauth, types.ProviderAnthropic),
		"anthropic bearer tokens are tagged for the OAuth path")
	assert.Equal(t, "tok-123", clientAPIKey(oauth, types.ProviderOpenAI))
	assert.Equal(t, "tok-123", clientAPIKey(oauth, types.ProviderCohere))

	goog := http.Header{}
	goog.Set("x-goog-api-key", "AIza-test")
	assert.Equal(t, "AIza-test", clientAPIKey(goog, types.ProviderGemini))

	assert.Empty(t, clientAPIKey(http.Header{}, types.ProviderAnthropic))
}

func TestPassthroughStripsAgentSegment(t *testing.T) {
	var seenPath, seenQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		seenQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer upstream.Close()

	h := newHarness(upstream.URL)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/openai/"+testAgentID+"/models?limit=5", nil)
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/models", seenPath)
	assert.Equal(t, "limit=5", seenQuery)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, `{"data":[]}`, string(body))
	assert.Empty(t, h.interactions.records(), "passthrough never enters the pipeline")
}

func TestPassthroughMalformedAgentSegment(t *testing.T) {
	var seenPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
	}))
	defer upstream.Close()

	h := newHarness(upstream.URL)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/openai/not-a-uuid/models", nil)
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, "/not-a-uuid/models", seenPath,
		"malformed uuid segments belong to the provider path")
}

func TestUnknownProvider(t *testing.T) {
	h := newHarness("http://unused.invalid")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/grok/chat/completions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnthropicBetaForwarded(t *testing.T) {
	var seenBeta string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenBeta = r.Header.Get("anthropic-beta")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","model":"claude-sonnet-4-5","role":"assistant","type":"message",
			"content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":3,"output_tokens":1}}`)
	}))
	defer upstream.Close()

	h := newHarness(upstream.URL)
	body := `{"model":"claude-sonnet-4-5","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`
	req := chatRequest(t, "/v1/anthropic/"+testAgentID+"/v1/messages", body)
	req.Header.Set("anthropic-beta", "token-efficient-tools-2025-02-19")

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "token-efficient-tools-2025-02-19", seenBeta)
}
