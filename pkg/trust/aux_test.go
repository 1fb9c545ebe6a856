// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package trust

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archestra-ai/gateway/pkg/types"
)

func TestProviderAux_Anthropic(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-3-5-haiku-20241022", body["model"])
		assert.Equal(t, "sys", body["system"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"verdict here"}]}`))
	}))
	defer srv.Close()

	aux := NewProviderAux(types.ProviderAnthropic, srv.URL, "sk-ant-test", "", srv.Client())
	out, err := aux.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)

	assert.Equal(t, "verdict here", out)
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "sk-ant-test", gotKey)
}

func TestProviderAux_AnthropicBearerPrefix(t *testing.T) {
	var gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("x-api-key")
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	aux := NewProviderAux(types.ProviderAnthropic, srv.URL, "Bearer:oauth-token", "", srv.Client())
	_, err := aux.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)

	assert.Equal(t, "Bearer oauth-token", gotAuth)
	assert.Empty(t, gotKey)
}

func TestProviderAux_OpenAIFamily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		msgs := body["messages"].([]interface{})
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])

		w.Write([]byte(`{"choices":[{"message":{"content":"classified"}}]}`))
	}))
	defer srv.Close()

	aux := NewProviderAux(types.ProviderCerebras, srv.URL, "sk-test", "llama3.1-8b", srv.Client())
	out, err := aux.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "classified", out)
}

func TestProviderAux_Gemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"fine"}]}}]}`))
	}))
	defer srv.Close()

	aux := NewProviderAux(types.ProviderGemini, srv.URL, "g-key", "", srv.Client())
	out, err := aux.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "fine", out)
}

func TestProviderAux_Bedrock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/model/us.amazon.nova-lite-v1:0/converse", r.URL.Path)
		w.Write([]byte(`{"output":{"message":{"content":[{"text":"converse ok"}]}}}`))
	}))
	defer srv.Close()

	aux := NewProviderAux(types.ProviderBedrock, srv.URL, "bearer-token", "", srv.Client())
	out, err := aux.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "converse ok", out)
}

func TestProviderAux_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	aux := NewProviderAux(types.ProviderOpenAI, srv.URL, "sk", "", srv.Client())
	_, err := aux.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
