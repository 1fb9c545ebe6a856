// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package openai

import (
	"encoding/json"
	"fmt"

	"github.com/archestra-ai/gateway/pkg/types"
)

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
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
}

// Response wraps a non-streaming chat completion.
type Response struct {
	wire wireResponse
}

func parseResponse(body []byte) (*Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parsing chat completion: %w", err)
	}
	return &Response{wire: wire}, nil
}

func (r *Response) ID() string    { return r.wire.ID }
func (r *Response) Model() string { return r.wire.Model }

func (r *Response) Text() string {
	if len(r.wire.Choices) == 0 {
		return ""
	}
	return r.wire.Choices[0].Message.Content
}

func (r *Response) ToolCalls() []types.ToolCall {
	if len(r.wire.Choices) == 0 {
		return nil
	}
	var out []types.ToolCall
	for _, tc := range r.wire.Choices[0].Message.ToolCalls {
		out = append(out, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func (r *Response) Usage() *types.Usage {
	if r.wire.Usage == nil {
		return nil
	}
	return &types.Usage{
		InputTokens:  r.wire.Usage.PromptTokens,
		OutputTokens: r.wire.Usage.CompletionTokens,
	}
}

func (r *Response) ToRefusalResponse(message string) ([]byte, error) {
	refusal := wireResponse{
		ID:      r.wire.ID,
		Object:  "chat.completion",
		Created: r.wire.Created,
		Model:   r.wire.Model,
		Choices: []wireChoice{{
			Message:      wireMessage{Role: "assistant", Content: message},
			FinishReason: "stop",
		}},
		Usage: r.wire.Usage,
	}
	out, err := json.Marshal(refusal)
	if err != nil {
		return nil, fmt.Errorf("rendering refusal: %w", err)
	}
	return out, nil
}
