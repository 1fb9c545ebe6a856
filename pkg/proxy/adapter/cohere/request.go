// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cohere

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Request wraps a raw v2 chat request.
type Request struct {
	raw       map[string]interface{}
	model     string
	overrides map[string]string
	opts      adapter.RequestOptions
}

func (r *Request) Provider() types.Provider { return types.ProviderCohere }
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
			view.ToolResults = []types.ToolResult{{
				ID:      id,
				Name:    names[id],
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
		if !ok || adapter.Str(msg, "role") != "tool" {
			continue
		}
		if override, ok := r.overrides[adapter.Str(msg, "tool_call_id")]; ok {
			msg["content"] = []interface{}{
				map[string]interface{}{"type": "text", "text": override},
			}
		}
	}

	out, err := json.Marshal(r.raw)
	if err != nil {
		return nil, fmt.Errorf("materializing cohere request: %w", err)
	}
	return out, nil
}

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

// flattenContent reduces string-or-blocks content to text. Document
// blocks are carried as their JSON form.
func flattenContent(v interface{}) string {
	switch content := v.(type) {
	case string:
		return content
	case []interface{}:
		var parts []string
		for _, b := range content {
			block, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			switch adapter.Str(block, "type") {
			case "text":
				parts = append(parts, adapter.Str(block, "text"))
			case "document":
				payload, _ := json.Marshal(block["document"])
				parts = append(parts, string(payload))
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
