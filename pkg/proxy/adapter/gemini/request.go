// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Request wraps a raw generateContent body. Gemini carries no
// tool-call ids; functionResponse parts are keyed by function name.
type Request struct {
	raw       map[string]interface{}
	model     string
	streaming bool
	overrides map[string]string
	opts      adapter.RequestOptions
}

func (r *Request) Provider() types.Provider { return types.ProviderGemini }
func (r *Request) Model() string            { return r.model }
func (r *Request) SetModel(model string)    { r.model = model }
func (r *Request) Stream() bool             { return r.streaming }

func (r *Request) Messages() []types.Message {
	var out []types.Message
	for _, c := range adapter.Slice(r.raw, "contents") {
		content, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		view := types.Message{Role: adapter.Str(content, "role")}

		var text []string
		for _, p := range adapter.Slice(content, "parts") {
			part, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			if t := adapter.Str(part, "text"); t != "" {
				text = append(text, t)
			}
			if fr := adapter.Map(part, "functionResponse"); fr != nil {
				name := adapter.Str(fr, "name")
				payload, _ := json.Marshal(fr["response"])
				view.ToolResults = append(view.ToolResults, types.ToolResult{
					ID:      name,
					Name:    name,
					Content: string(payload),
				})
			}
		}
		view.Content = strings.Join(text, "\n")
		out = append(out, view)
	}
	return out
}

func (r *Request) ToolDefinitions() []types.ToolDefinition {
	var out []types.ToolDefinition
	for _, t := range adapter.Slice(r.raw, "tools") {
		tool, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		for _, d := range adapter.Slice(tool, "functionDeclarations") {
			decl, ok := d.(map[string]interface{})
			if !ok {
				continue
			}
			out = append(out, types.ToolDefinition{
				Name:        adapter.Str(decl, "name"),
				Description: adapter.Str(decl, "description"),
				InputSchema: adapter.Map(decl, "parameters"),
			})
		}
	}
	return out
}

func (r *Request) ToolResults() []types.ToolResult {
	var out []types.ToolResult
	for _, m := range r.Messages() {
		out = append(out, m.ToolResults...)
	}
	return adapter.OverrideToolResults(out, r.overrides)
}

func (r *Request) UpdateToolResult(id, content string) bool {
	for _, tr := range r.ToolResults() {
		if tr.ID == id {
			r.overrides[id] = content
			return true
		}
	}
	return false
}

func (r *Request) ApplyToolResultUpdates(overrides map[string]string) {
	for id, content := range overrides {
		r.overrides[id] = content
	}
}

func (r *Request) ToProviderRequest() ([]byte, error) {
	for _, c := range adapter.Slice(r.raw, "contents") {
		content, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		parts := adapter.Slice(content, "parts")
		for i, p := range parts {
			part, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			if fr := adapter.Map(part, "functionResponse"); fr != nil {
				if override, ok := r.overrides[adapter.Str(fr, "name")]; ok {
					fr["response"] = map[string]interface{}{"result": override}
				}
				continue
			}
			if r.opts.ConvertImages && adapter.Str(part, "type") == "image" {
				parts[i] = convertImagePart(part)
			}
		}
	}

	out, err := json.Marshal(r.raw)
	if err != nil {
		return nil, fmt.Errorf("materializing gemini request: %w", err)
	}
	return out, nil
}

// convertImagePart rewrites an MCP-style image part into Gemini's
// inlineData form; oversized payloads become a placeholder text part.
func convertImagePart(part map[string]interface{}) map[string]interface{} {
	data := adapter.Str(part, "data")
	if adapter.ImageTooLarge(data) {
		return map[string]interface{}{"text": adapter.ImageOmittedPlaceholder}
	}
	return map[string]interface{}{
		"inlineData": map[string]interface{}{
			"mimeType": adapter.Str(part, "mimeType"),
			"data":     data,
		},
	}
}
