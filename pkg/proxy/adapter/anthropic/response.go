// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archestra-ai/gateway/pkg/types"
)

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireContentBlock struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text,omitempty"`
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

type wireResponse struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Role         string             `json:"role"`
	Model        string             `json:"model"`
	Content      []wireContentBlock `json:"content"`
	StopReason   string             `json:"stop_reason"`
	StopSequence *string            `json:"stop_sequence"`
	Usage        wireUsage          `json:"usage"`
}

// Response wraps a non-streaming Messages API response.
type Response struct {
	wire wireResponse
}

func parseResponse(body []byte) (*Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parsing anthropic response: %w", err)
	}
	return &Response{wire: wire}, nil
}

func (r *Response) ID() string    { return r.wire.ID }
func (r *Response) Model() string { return r.wire.Model }

func (r *Response) Text() string {
	var parts []string
	for _, block := range r.wire.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "")
}

func (r *Response) ToolCalls() []types.ToolCall {
	var out []types.ToolCall
	for _, block := range r.wire.Content {
		if block.Type == "tool_use" {
			out = append(out, types.ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}
	return out
}

func (r *Response) Usage() *types.Usage {
	return &types.Usage{
		InputTokens:  r.wire.Usage.InputTokens,
		OutputTokens: r.wire.Usage.OutputTokens,
	}
}

// ToRefusalResponse keeps the upstream id, model, and usage but
// replaces the content with a single text block and an end_turn stop.
func (r *Response) ToRefusalResponse(message string) ([]byte, error) {
	refusal := wireResponse{
		ID:         r.wire.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      r.wire.Model,
		Content:    []wireContentBlock{{Type: "text", Text: message}},
		StopReason: "end_turn",
		Usage:      r.wire.Usage,
	}
	out, err := json.Marshal(refusal)
	if err != nil {
		return nil, fmt.Errorf("rendering refusal: %w", err)
	}
	return out, nil
}
