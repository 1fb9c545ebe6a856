// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Request wraps a raw chat-completions request as a generic JSON tree
// so fields the gateway does not model survive untouched.
type Request struct {
	provider  types.Provider
	raw       map[string]interface{}
	model     string
	overrides map[string]string
	opts      adapter.RequestOptions
}

func (r *Request) Provider() types.Provider { return r.provider }
func (r *Request) Model() string            { return r.model }
func (r *Request) SetModel(model string)    { r.model = model }
func (r *Request) Stream() bool             { return adapter.Bool(r.raw, "stream") }

func (r *Request) Messages() []types.Message {
	names := r.toolNames()
	var out []types.Message
	for _, m := range adapter.Slice(r.raw, "messages") {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		role := adapter.Str(msg, "role")
		view := types.Message{Role: role, Content: flattenContent(msg["content"])}

		if role == "tool" {
			id := adapter.Str(msg, "tool_call_id")
			name := adapter.Str(msg, "name")
			if name == "" {
				name = names[id]
			}
			view.ToolResults = []types.ToolResult{{
				ID:      id,
				Name:    name,
				Content: view.Content,
			}}
		}
		out = append(out, view)
	}
	return out
}

func (r *Request) ToolDefinitions() []types.ToolDefinition {
	var out []types.ToolDefinition
	for _, t := range adapter.Slice(r.raw, "tools") {
		tool, ok := t.(map[string]interface{})
		if !ok || adapter.Str(tool, "type") != "function" {
			continue
		}
		fn := adapter.Map(tool, "function")
		if fn == nil {
			continue
		}
		out = append(out, types.ToolDefinition{
			Name:        adapter.Str(fn, "name"),
			Description: adapter.Str(fn, "description"),
			InputSchema: adapter.Map(fn, "parameters"),
		})
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
	r.raw["model"] = r.model
	for _, m := range adapter.Slice(r.raw, "messages") {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		if adapter.Str(msg, "role") == "tool" {
			if override, ok := r.overrides[adapter.Str(msg, "tool_call_id")]; ok {
				msg["content"] = override
			}
			continue
		}
		if r.opts.ConvertImages {
			if parts, ok := msg["content"].([]interface{}); ok {
				msg["content"] = convertImageParts(parts)
			}
		}
	}

	out, err := json.Marshal(r.raw)
	if err != nil {
		return nil, fmt.Errorf("materializing chat-completions request: %w", err)
	}
	return out, nil
}

// toolNames maps tool-call id → function name from assistant
// tool_calls, for tool messages that omit the deprecated name field.
func (r *Request) toolNames() map[string]string {
	names := map[string]string{}
	for _, m := range adapter.Slice(r.raw, "messages") {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		for _, tc := range adapter.Slice(msg, "tool_calls") {
			call, ok := tc.(map[string]interface{})
			if !ok {
				continue
			}
			if fn := adapter.Map(call, "function"); fn != nil {
				names[adapter.Str(call, "id")] = adapter.Str(fn, "name")
			}
		}
	}
	return names
}

// convertImageParts rewrites MCP-style image parts ({data, mimeType})
// into image_url parts with a data URL; oversized images in either
// form become a placeholder text part.
func convertImageParts(parts []interface{}) []interface{} {
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		part, ok := p.(map[string]interface{})
		if !ok {
			out[i] = p
			continue
		}
		switch adapter.Str(part, "type") {
		case "image":
			data := adapter.Str(part, "data")
			if adapter.ImageTooLarge(data) {
				out[i] = map[string]interface{}{"type": "text", "text": adapter.ImageOmittedPlaceholder}
				continue
			}
			out[i] = map[string]interface{}{
				"type": "image_url",
				"image_url": map[string]interface{}{
					"url": fmt.Sprintf("data:%s;base64,%s", adapter.Str(part, "mimeType"), data),
				},
			}
		case "image_url":
			url := adapter.Str(adapter.Map(part, "image_url"), "url")
			if data, ok := strings.CutPrefix(url, "data:"); ok {
				if comma := strings.IndexByte(data, ','); comma >= 0 && adapter.ImageTooLarge(data[comma+1:]) {
					out[i] = map[string]interface{}{"type": "text", "text": adapter.ImageOmittedPlaceholder}
					continue
				}
			}
			out[i] = p
		default:
			out[i] = p
		}
	}
	return out
}

// flattenContent reduces string-or-parts content to text.
func flattenContent(v interface{}) string {
	switch content := v.(type) {
	case string:
		return content
	case []interface{}:
		var parts []string
		for _, p := range content {
			if part, ok := p.(map[string]interface{}); ok && adapter.Str(part, "type") == "text" {
				parts = append(parts, adapter.Str(part, "text"))
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
