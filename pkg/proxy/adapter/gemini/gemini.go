// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package gemini adapts the Gemini generateContent REST API. The
// model name and streaming mode live in the URL, not the body; the
// router passes them in through the request options.
package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Codec implements adapter.Codec for Gemini.
type Codec struct{}

func New() *Codec { return &Codec{} }

func (c *Codec) Provider() types.Provider { return types.ProviderGemini }

func (c *Codec) ParseRequest(body []byte, opts adapter.RequestOptions) (adapter.RequestAdapter, error) {
	raw, err := adapter.DecodeJSONMap(body)
	if err != nil {
		return nil, err
	}
	return &Request{
		raw:       raw,
		model:     opts.Model,
		streaming: opts.Streaming,
		overrides: map[string]string{},
		opts:      opts,
	}, nil
}

func (c *Codec) ParseResponse(body []byte, _ adapter.RequestAdapter) (adapter.ResponseAdapter, error) {
	return parseResponse(body)
}

func (c *Codec) NewStream(upstream io.Reader, _ adapter.RequestAdapter) adapter.StreamAdapter {
	return newStream(upstream)
}

func (c *Codec) UpstreamRequest(ctx context.Context, baseURL, apiKey string, req adapter.RequestAdapter, body []byte) (*http.Request, error) {
	method := "generateContent"
	suffix := ""
	if req != nil && req.Stream() {
		method = "streamGenerateContent"
		suffix = "?alt=sse"
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:%s%s", strings.TrimRight(baseURL, "/"), req.Model(), method, suffix)

	out, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("building gemini request: %w", err)
	}
	out.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		out.Header.Set("x-goog-api-key", apiKey)
	}
	return out, nil
}
