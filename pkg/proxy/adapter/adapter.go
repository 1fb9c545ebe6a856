// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package adapter defines the provider adapter contracts: a request
// adapter, a response adapter, and a stream adapter per provider,
// produced by a Codec. The proxy orchestrator works exclusively
// against these interfaces; the per-provider wire formats live in the
// subpackages.
package adapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/archestra-ai/gateway/pkg/types"
)

// RequestOptions tune request parsing and materialization.
type RequestOptions struct {
	// ConvertImages rewrites MCP-style image blocks into the
	// provider's native representation and strips oversized ones.
	ConvertImages bool

	// Model and Streaming carry URL-derived request attributes for
	// providers whose wire format puts them in the path (Gemini).
	// Ignored by providers that carry them in the body.
	Model     string
	Streaming bool
}

// RequestAdapter wraps a raw provider request body. Mutations are
// recorded as overrides and applied once by ToProviderRequest, so
// applying the same overrides twice yields the same request.
type RequestAdapter interface {
	Provider() types.Provider
	Model() string
	SetModel(model string)
	Stream() bool

	// Messages is the provider-independent view of the conversation.
	Messages() []types.Message
	ToolDefinitions() []types.ToolDefinition

	// ToolResults returns the effective tool-result contents: pending
	// overrides replace the original wire payloads, so a stage that
	// runs after another stage's rewrite sees the rewritten content.
	ToolResults() []types.ToolResult

	// UpdateToolResult records an override for the tool result with
	// the given call id. It reports whether such a result exists.
	UpdateToolResult(id, content string) bool

	// ApplyToolResultUpdates records every override in the map.
	ApplyToolResultUpdates(overrides map[string]string)

	// ToProviderRequest materializes the (possibly modified) wire
	// request: model override, tool-result overrides, and image
	// conversion are applied here.
	ToProviderRequest() ([]byte, error)
}

// ResponseAdapter wraps a raw non-streaming provider response.
type ResponseAdapter interface {
	ID() string
	Model() string
	Text() string
	ToolCalls() []types.ToolCall
	Usage() *types.Usage

	// ToRefusalResponse renders the provider's own non-streaming
	// response shape with the text replaced by message, no tool
	// blocks, and an end-turn stop reason.
	ToRefusalResponse(message string) ([]byte, error)
}

// ChunkResult is the outcome of processing one upstream chunk.
type ChunkResult struct {
	// SSEData is forwarded to the client verbatim. nil when the
	// chunk was buffered (tool-call or final framing).
	SSEData []byte

	// IsToolCall marks chunks held back until policy approves them.
	IsToolCall bool

	// IsFinal marks the provider's final framing; the adapter
	// buffers it for FormatEnd.
	IsFinal bool
}

// StreamAdapter consumes one upstream stream and produces the
// client-visible framing. Next returns io.EOF when the upstream is
// exhausted. Not safe for concurrent use; one per request.
type StreamAdapter interface {
	Next() (ChunkResult, error)

	// SSEHeaders are the response headers for this provider's
	// streaming format.
	SSEHeaders() http.Header

	// FormatTextDelta frames text as a single streamed delta.
	FormatTextDelta(text string) []byte

	// FormatCompleteText frames text as a complete assistant
	// message (used for synthesized refusals).
	FormatCompleteText(text string) []byte

	// RawToolCallEvents returns the buffered tool-call chunks,
	// verbatim, for replay after policy approval.
	RawToolCallEvents() [][]byte

	// FormatEnd returns the final framing: buffered upstream final
	// events when present, synthesized ones otherwise.
	FormatEnd() []byte

	Accumulator() *Accumulator
}

// OverrideToolResults substitutes pending override content into a
// tool-result view. Request adapters call it from ToolResults so
// downstream stages operate on what will actually be dispatched.
func OverrideToolResults(results []types.ToolResult, overrides map[string]string) []types.ToolResult {
	for i := range results {
		if content, ok := overrides[results[i].ID]; ok {
			results[i].Content = content
		}
	}
	return results
}

// Codec bundles the three adapters for one provider.
type Codec interface {
	Provider() types.Provider

	ParseRequest(body []byte, opts RequestOptions) (RequestAdapter, error)

	// ParseResponse interprets a non-streaming upstream response.
	// req is the request the response answers (adapters needing
	// per-request state, like Bedrock's tool-name map, use it).
	ParseResponse(body []byte, req RequestAdapter) (ResponseAdapter, error)

	// NewStream wraps the upstream response body.
	NewStream(upstream io.Reader, req RequestAdapter) StreamAdapter

	// UpstreamRequest builds the outbound HTTP request for body.
	UpstreamRequest(ctx context.Context, baseURL, apiKey string, req RequestAdapter, body []byte) (*http.Request, error)
}

// Accumulator collects stream state for policy and record emission.
// Created with the stream adapter, mutated only by chunk processing.
type Accumulator struct {
	ResponseID string
	Model      string
	Text       string
	ToolCalls  []types.ToolCall
	Usage      *types.Usage
	StopReason string

	Start      time.Time
	FirstChunk time.Time
}

// MarkChunk stamps the first-chunk time.
func (a *Accumulator) MarkChunk() {
	if a.FirstChunk.IsZero() {
		a.FirstChunk = time.Now()
	}
}

// AddText appends streamed text.
func (a *Accumulator) AddText(text string) {
	a.Text += text
}
