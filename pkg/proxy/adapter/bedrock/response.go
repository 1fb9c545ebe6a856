// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package bedrock

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archestra-ai/gateway/pkg/types"
)

type wireToolUse struct {
	ToolUseID string                 `json:"toolUseId"`
	Name      string                 `json:"name"`
	Input     map[string]interface{} `json:"input"`
}

type wireBlock struct {
	Text    string       `json:"text,omitempty"`
	ToolUse *wireToolUse `json:"toolUse,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

type wireResponse struct {
	Output struct {
		Message wireMessage `json:"message"`
	} `json:"output"`
	StopReason string                 `json:"stopReason"`
	Usage      *wireUsage             `json:"usage,omitempty"`
	Metrics    map[string]interface{} `json:"metrics,omitempty"`
}

// Response wraps a non-streaming Converse response. Tool names are
// decoded through the request's name map before clients see them.
type Response struct {
	wire    wireResponse
	nameMap map[string]string
}

func parseResponse(body []byte, nameMap map[string]string) (*Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parsing converse response: %w", err)
	}
	return &Response{wire: wire, nameMap: nameMap}, nil
}

// ID returns empty: the Converse wire carries no response id.
func (r *Response) ID() string    { return "" }
func (r *Response) Model() string { return "" }

func (r *Response) Text() string {
	var parts []string
	for _, block := range r.wire.Output.Message.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "")
}

func (r *Response) ToolCalls() []types.ToolCall {
	var out []types.ToolCall
	for _, block := range r.wire.Output.Message.Content {
		if block.ToolUse != nil {
			out = append(out, types.ToolCall{
				ID:        block.ToolUse.ToolUseID,
				Name:      decodeToolName(r.nameMap, block.ToolUse.Name),
				Arguments: block.ToolUse.Input,
			})
		}
	}
	return out
}

func (r *Response) Usage() *types.Usage {
	if r.wire.Usage == nil {
		return nil
	}
	return &types.Usage{
		InputTokens:  r.wire.Usage.InputTokens,
		OutputTokens: r.wire.Usage.OutputTokens,
	}
}

// DecodedBody re-renders the response with tool names mapped back to
// the client's originals. Without a name map the body passes through
// untouched.
func (r *Response) DecodedBody(original []byte) []byte {
	if len(r.nameMap) == 0 {
		return original
	}
	decoded := r.wire
	blocks := make([]wireBlock, len(decoded.Output.Message.Content))
	copy(blocks, decoded.Output.Message.Content)
	for i := range blocks {
		if blocks[i].ToolUse != nil {
			tu := *blocks[i].ToolUse
			tu.Name = decodeToolName(r.nameMap, tu.Name)
			blocks[i].ToolUse = &tu
		}
	}
	decoded.Output.Message.Content = blocks
	out, err := json.Marshal(decoded)
	if err != nil {
		return original
	}
	return out
}

func (r *Response) ToRefusalResponse(message string) ([]byte, error) {
	refusal := wireResponse{
		StopReason: "end_turn",
		Usage:      r.wire.Usage,
	}
	refusal.Output.Message = wireMessage{
		Role:    "assistant",
		Content: []wireBlock{{Text: message}},
	}
	out, err := json.Marshal(refusal)
	if err != nil {
		return nil, fmt.Errorf("rendering refusal: %w", err)
	}
	return out, nil
}
