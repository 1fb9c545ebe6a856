// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archestra-ai/gateway/pkg/types"
)

type wirePart struct {
	Text         string                 `json:"text,omitempty"`
	FunctionCall *wireFunctionCall      `json:"functionCall,omitempty"`
	InlineData   map[string]interface{} `json:"inlineData,omitempty"`
}

type wireFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason,omitempty"`
	Index        int         `json:"index,omitempty"`
}

type wireUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type wireResponse struct {
	Candidates    []wireCandidate `json:"candidates"`
	UsageMetadata *wireUsage      `json:"usageMetadata,omitempty"`
	ModelVersion  string          `json:"modelVersion,omitempty"`
	ResponseID    string          `json:"responseId,omitempty"`
}

// Response wraps a non-streaming generateContent response.
type Response struct {
	wire wireResponse
}

func parseResponse(body []byte) (*Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parsing gemini response: %w", err)
	}
	return &Response{wire: wire}, nil
}

func (r *Response) ID() string    { return r.wire.ResponseID }
func (r *Response) Model() string { return r.wire.ModelVersion }

func (r *Response) Text() string {
	if len(r.wire.Candidates) == 0 {
		return ""
	}
	var parts []string
	for _, p := range r.wire.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "")
}

// ToolCalls keys calls by function name; Gemini's wire has no call
// ids.
func (r *Response) ToolCalls() []types.ToolCall {
	if len(r.wire.Candidates) == 0 {
		return nil
	}
	var out []types.ToolCall
	for _, p := range r.wire.Candidates[0].Content.Parts {
		if p.FunctionCall != nil {
			out = append(out, types.ToolCall{
				ID:        p.FunctionCall.Name,
				Name:      p.FunctionCall.Name,
				Arguments: p.FunctionCall.Args,
			})
		}
	}
	return out
}

func (r *Response) Usage() *types.Usage {
	if r.wire.UsageMetadata == nil {
		return nil
	}
	return &types.Usage{
		InputTokens:  r.wire.UsageMetadata.PromptTokenCount,
		OutputTokens: r.wire.UsageMetadata.CandidatesTokenCount,
	}
}

func (r *Response) ToRefusalResponse(message string) ([]byte, error) {
	refusal := wireResponse{
		Candidates: []wireCandidate{{
			Content:      wireContent{Role: "model", Parts: []wirePart{{Text: message}}},
			FinishReason: "STOP",
		}},
		UsageMetadata: r.wire.UsageMetadata,
		ModelVersion:  r.wire.ModelVersion,
		ResponseID:    r.wire.ResponseID,
	}
	out, err := json.Marshal(refusal)
	if err != nil {
		return nil, fmt.Errorf("rendering refusal: %w", err)
	}
	return out, nil
}
