// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package openai adapts the chat-completions wire format. One codec
// serves every OpenAI-compatible provider (OpenAI, Cerebras, Mistral,
// Ollama, VLLM, Zhipuai); they differ only in upstream base URL.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Codec implements adapter.Codec for an OpenAI-compatible provider.
type Codec struct {
	provider types.Provider
}

func New(provider types.Provider) *Codec { return &Codec{provider: provider} }

func (c *Codec) Provider() types.Provider { return c.provider }

func (c *Codec) ParseRequest(body []byte, opts adapter.RequestOptions) (adapter.RequestAdapter, error) {
	raw, err := adapter.DecodeJSONMap(body)
	if err != nil {
		return nil, err
	}
	return &Request{
		provider:  c.provider,
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

func (c *Codec) UpstreamRequest(ctx context.Context, baseURL, apiKey string, _ adapter.RequestAdapter, body []byte) (*http.Request, error) {
	url := strings.TrimRight(baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("building chat-completions request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req, nil
}
