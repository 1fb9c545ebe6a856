// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package proxy

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/internal/log"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Handler is the provider-facing HTTP surface. Routes have the shape
// /v1/{provider}[/{agentId}]/{provider-path}: chat endpoints enter the
// orchestration pipeline, everything else is reverse-proxied upstream
// untouched.
type Handler struct {
	deps   Deps
	client *http.Client
	logger *zap.Logger

	seenExecutions sync.Map
}

// New builds a Handler. The upstream client's transport is wrapped to
// observe request durations.
func New(deps Deps) *Handler {
	client := http.Client{}
	if deps.HTTPClient != nil {
		client = *deps.HTTPClient
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.Transport = &timingTransport{base: base}

	return &Handler{
		deps:   deps,
		client: &client,
		logger: log.With(zap.String("component", "proxy")),
	}
}

// chatInfo carries URL-derived request attributes for the providers
// that put model and streaming in the path.
type chatInfo struct {
	model     string
	streaming bool
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segments) < 2 || segments[0] != "v1" {
		http.NotFound(w, r)
		return
	}
	provider := types.Provider(segments[1])
	if !provider.Valid() {
		http.NotFound(w, r)
		return
	}

	rest := segments[2:]
	agentID := ""
	if len(rest) > 0 {
		// A malformed UUID segment is treated as part of the
		// provider path, not as an agent id.
		if _, err := uuid.Parse(rest[0]); err == nil {
			agentID = rest[0]
			rest = rest[1:]
		}
	}
	tail := "/" + strings.Join(rest, "/")

	if info, ok := chatEndpoint(provider, tail); ok && r.Method == http.MethodPost {
		h.handleChat(w, r, provider, agentID, info)
		return
	}
	h.passthrough(w, r, provider, tail)
}

// chatEndpoint reports whether tail is the provider's chat endpoint
// and extracts the URL-borne attributes where the wire puts them
// there.
func chatEndpoint(provider types.Provider, tail string) (chatInfo, bool) {
	switch {
	case provider == types.ProviderAnthropic:
		return chatInfo{}, tail == "/v1/messages"

	case provider == types.ProviderGemini:
		last := tail[strings.LastIndex(tail, "/")+1:]
		if name, ok := strings.CutSuffix(last, ":streamGenerateContent"); ok {
			return chatInfo{model: name, streaming: true}, true
		}
		if name, ok := strings.CutSuffix(last, ":generateContent"); ok {
			return chatInfo{model: name}, true
		}
		return chatInfo{}, false

	case provider == types.ProviderBedrock:
		parts := strings.Split(strings.Trim(tail, "/"), "/")
		if len(parts) == 3 && parts[0] == "model" {
			model, err := url.PathUnescape(parts[1])
			if err != nil {
				model = parts[1]
			}
			switch parts[2] {
			case "converse":
				return chatInfo{model: model}, true
			case "converse-stream":
				return chatInfo{model: model, streaming: true}, true
			}
		}
		return chatInfo{}, false

	case provider == types.ProviderCohere:
		return chatInfo{}, tail == "/chat"

	case provider.OpenAICompatible():
		return chatInfo{}, strings.HasSuffix(tail, "/chat/completions")
	}
	return chatInfo{}, false
}

// clientAPIKey extracts the provider credential from the inbound
// headers. Anthropic bearer tokens are tagged with a "Bearer:" prefix
// so the adapter routes them down the OAuth path.
func clientAPIKey(h http.Header, provider types.Provider) string {
	bearer := ""
	if auth := h.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		bearer = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}

	switch provider {
	case types.ProviderAnthropic:
		if k := h.Get("x-api-key"); k != "" {
			return k
		}
		if bearer != "" {
			return "Bearer:" + bearer
		}
		return ""
	case types.ProviderGemini:
		if k := h.Get("x-goog-api-key"); k != "" {
			return k
		}
		return bearer
	default:
		return bearer
	}
}

func (h *Handler) features() Features {
	if h.deps.Features == nil {
		return Features{ToonCompression: true, DualLLM: true, ImageConversion: true}
	}
	return h.deps.Features()
}

func (h *Handler) baseURL(provider types.Provider) string {
	if h.deps.BaseURL != nil {
		if u := h.deps.BaseURL(provider); u != "" {
			return u
		}
	}
	return defaultBaseURLs[provider]
}
