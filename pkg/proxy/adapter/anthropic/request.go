// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Request wraps a raw Messages API request. The body is kept as a
// generic JSON tree so unrecognized fields survive materialization
// untouched.
type Request struct {
	raw       map[string]interface{}
	model     string
	overrides map[string]string
	opts      adapter.RequestOptions
}

func (r *Request) Provider() types.Provider { return types.ProviderAnthropic }
func (r *Request) Model() string            { return r.model }
func (r *Request) SetModel(model string)    { r.model = model }
func (r *Request) Stream() bool             { return adapter.Bool(r.raw, "stream") }

// Messages flattens the conversation into the common view. Tool
// results pick up names from the assistant tool_use blocks that
// requested them; the tool_result block itself carries no name.
func (r *Request) Messages() []types.Message {
	names := r.toolNames()
	var out []types.Message
	for _, m := range adapter.Slice(r.raw, "messages") {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		view := types.Message{Role: adapter.Str(msg, "role")}

		switch content := msg["content"].(type) {
		case string:
			view.Content = content
		case []interface{}:
			var text []string
			for _, b := range content {
				block, ok := b.(map[string]interface{})
				if !ok {
					continue
				}
				switch adapter.Str(block, "type") {
				case "text":
					text = append(text, adapter.Str(block, "text"))
				case "tool_result":
					id := adapter.Str(block, "tool_use_id")
					view.ToolResults = append(view.ToolResults, types.ToolResult{
						ID:      id,
						Name:    names[id],
						Content: flattenContent(block["content"]),
						IsError: adapter.Bool(block, "is_error"),
					})
				}
			}
			view.Content = strings.Join(text, "\n")
		}
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
		out = append(out, types.ToolDefinition{
			Name:        adapter.Str(tool, "name"),
			Description: adapter.Str(tool, "description"),
			InputSchema: adapter.Map(tool, "input_schema"),
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

// ToProviderRequest materializes the wire request. Overrides replace
// tool_result content wholesale; image blocks are converted or
// stripped when the option is on.
func (r *Request) ToProviderRequest() ([]byte, error) {
	r.raw["model"] = r.model
	for _, m := range adapter.Slice(r.raw, "messages") {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		blocks, ok := msg["content"].([]interface{})
		if !ok {
			continue
		}
		for i, b := range blocks {
			block, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			switch adapter.Str(block, "type") {
			case "tool_result":
				if override, ok := r.overrides[adapter.Str(block, "tool_use_id")]; ok {
					block["content"] = override
				}
				if r.opts.ConvertImages {
					if inner, ok := block["content"].([]interface{}); ok {
						block["content"] = convertImageBlocks(inner)
					}
				}
			case "image":
				if r.opts.ConvertImages {
					blocks[i] = convertImageBlock(block)
				}
			}
		}
	}

	out, err := json.Marshal(r.raw)
	if err != nil {
		return nil, fmt.Errorf("materializing anthropic request: %w", err)
	}
	return out, nil
}

// toolNames maps tool-call id → tool name from assistant tool_use
// blocks.
func (r *Request) toolNames() map[string]string {
	names := map[string]string{}
	for _, m := range adapter.Slice(r.raw, "messages") {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		blocks, ok := msg["content"].([]interface{})
		if !ok {
			continue
		}
		for _, b := range blocks {
			block, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			if adapter.Str(block, "type") == "tool_use" {
				names[adapter.Str(block, "id")] = adapter.Str(block, "name")
			}
		}
	}
	return names
}

func convertImageBlocks(blocks []interface{}) []interface{} {
	out := make([]interface{}, len(blocks))
	for i, b := range blocks {
		if block, ok := b.(map[string]interface{}); ok && adapter.Str(block, "type") == "image" {
			out[i] = convertImageBlock(block)
			continue
		}
		out[i] = b
	}
	return out
}

// convertImageBlock rewrites an MCP-style image block ({data,
// mimeType}) into Anthropic's source form. Oversized payloads become
// a placeholder text block in either form.
func convertImageBlock(block map[string]interface{}) map[string]interface{} {
	data := adapter.Str(block, "data")
	if data == "" {
		if source := adapter.Map(block, "source"); source != nil {
			data = adapter.Str(source, "data")
		}
	}
	if adapter.ImageTooLarge(data) {
		return map[string]interface{}{"type": "text", "text": adapter.ImageOmittedPlaceholder}
	}
	if mimeType := adapter.Str(block, "mimeType"); mimeType != "" {
		return map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": mimeType,
				"data":       data,
			},
		}
	}
	return block
}

// flattenContent reduces a tool_result content value (string or text
// block array) to a bare string.
func flattenContent(v interface{}) string {
	switch content := v.(type) {
	case string:
		return content
	case []interface{}:
		var parts []string
		for _, b := range content {
			if block, ok := b.(map[string]interface{}); ok && adapter.Str(block, "type") == "text" {
				parts = append(parts, adapter.Str(block, "text"))
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
