// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cohere

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archestra-ai/gateway/pkg/types"
)

type wireContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role      string             `json:"role"`
	Content   []wireContentBlock `json:"content,omitempty"`
	ToolCalls []wireToolCall     `json:"tool_calls,omitempty"`
	ToolPlan  string             `json:"tool_plan,omitempty"`
}

type wireTokens struct {
	InputTokens  float64 `json:"input_tokens"`
	OutputTokens float64 `json:"output_tokens"`
}

type wireUsage struct {
	BilledUnits *wireTokens `json:"billed_units,omitempty"`
	Tokens      *wireTokens `json:"tokens,omitempty"`
}

type wireResponse struct {
	ID           string      `json:"id"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
	Usage        *wireUsage  `json:"usage,omitempty"`
}

// Response wraps a non-streaming v2 chat response.
type Response struct {
	wire wireResponse
}

func parseResponse(body []byte) (*Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parsing cohere response: %w", err)
	}
	return &Response{wire: wire}, nil
}

func (r *Response) ID() string    { return r.wire.ID }
func (r *Response) Model() string { return "" }

func (r *Response) Text() string {
	var parts []string
	for _, block := range r.wire.Message.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "")
}

func (r *Response) ToolCalls() []types.ToolCall {
	var out []types.ToolCall
	for _, tc := range r.wire.Message.ToolCalls {
		out = append(out, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func (r *Response) Usage() *types.Usage {
	if r.wire.Usage == nil || r.wire.Usage.Tokens == nil {
		return nil
	}
	return &types.Usage{
		InputTokens:  int(r.wire.Usage.Tokens.InputTokens),
		OutputTokens: int(r.wire.Usage.Tokens.OutputTokens),
	}
}

func (r *Response) ToRefusalResponse(message string) ([]byte, error) {
	refusal := wireResponse{
		ID: r.wire.ID,
		Message: wireMessage{
			Role:    "assistant",
			Content: []wireContentBlock{{Type: "text", Text: message}},
		},
		FinishReason: "COMPLETE",
		Usage:        r.wire.Usage,
	}
	out, err := json.Marshal(refusal)
	if err != nil {
		return nil, fmt.Errorf("rendering refusal: %w", err)
	}
	return out, nil
}
