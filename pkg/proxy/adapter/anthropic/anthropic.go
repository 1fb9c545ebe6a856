// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package anthropic adapts the Anthropic Messages API: request
// parsing and materialization, non-streaming responses, and the named
// SSE event stream.
package anthropic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Codec implements adapter.Codec for Anthropic.
type Codec struct{}

func New() *Codec { return &Codec{} }

func (c *Codec) Provider() types.Provider { return types.ProviderAnthropic }

func (c *Codec) ParseRequest(body []byte, opts adapter.RequestOptions) (adapter.RequestAdapter, error) {
	raw, err := adapter.DecodeJSONMap(body)
	if err != nil {
		return nil, err
	}
	return &Request{
		raw:       raw,
		model:     adapter.Str(raw, "model"),
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

// UpstreamRequest builds the outbound call. API keys with the
// internal "Bearer:" prefix take the OAuth Authorization path instead
// of x-api-key.
func (c *Codec) UpstreamRequest(ctx context.Context, baseURL, apiKey string, _ adapter.RequestAdapter, body []byte) (*http.Request, error) {
	url := strings.TrimRight(baseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("building anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", "2023-06-01")
	if token, ok := strings.CutPrefix(apiKey, "Bearer:"); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	return req, nil
}
