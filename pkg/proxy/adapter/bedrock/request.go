// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package bedrock

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Request wraps a raw Converse request. The common views report the
// client's original tool names; encoding happens only at
// materialization, and only for Nova models.
type Request struct {
	raw       map[string]interface{}
	model     string
	streaming bool
	overrides map[string]string
	opts      adapter.RequestOptions
	nameMap   map[string]string // encoded → original
}

func (r *Request) Provider() types.Provider { return types.ProviderBedrock }
func (r *Request) Model() string            { return r.model }
func (r *Request) Stream() bool             { return r.streaming }

// SetModel re-derives the name map: substitution can move a request
// onto or off a Nova model.
func (r *Request) SetModel(model string) {
	r.model = model
	r.buildNameMap()
}

func (r *Request) buildNameMap() {
	if !novaModel(r.model) {
		r.nameMap = nil
		return
	}
	var names []string
	for _, tool := range r.ToolDefinitions() {
		names = append(names, tool.Name)
	}
	r.nameMap = buildToolNameMap(names)
}

func (r *Request) Messages() []types.Message {
	names := r.toolUseNames()
	var out []types.Message
	for _, m := range adapter.Slice(r.raw, "messages") {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		view := types.Message{Role: adapter.Str(msg, "role")}

		var text []string
		for _, b := range adapter.Slice(msg, "content") {
			block, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			if t := adapter.Str(block, "text"); t != "" {
				text = append(text, t)
			}
			if tr := adapter.Map(block, "toolResult"); tr != nil {
				id := adapter.Str(tr, "toolUseId")
				view.ToolResults = append(view.ToolResults, types.ToolResult{
					ID:      id,
					Name:    names[id],
					Content: flattenResultContent(tr["content"]),
					IsError: adapter.Str(tr, "status") == "error",
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
	toolConfig := adapter.Map(r.raw, "toolConfig")
	for _, t := range adapter.Slice(toolConfig, "tools") {
		tool, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		spec := adapter.Map(tool, "toolSpec")
		if spec == nil {
			continue
		}
		schema := adapter.Map(spec, "inputSchema")
		out = append(out, types.ToolDefinition{
			Name:        adapter.Str(spec, "name"),
			Description: adapter.Str(spec, "description"),
			InputSchema: adapter.Map(schema, "json"),
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
	encode := novaModel(r.model)

	if toolConfig := adapter.Map(r.raw, "toolConfig"); toolConfig != nil && encode {
		for _, t := range adapter.Slice(toolConfig, "tools") {
			tool, ok := t.(map[string]interface{})
			if !ok {
				continue
			}
			if spec := adapter.Map(tool, "toolSpec"); spec != nil {
				spec["name"] = encodeToolName(adapter.Str(spec, "name"))
			}
		}
	}

	for _, m := range adapter.Slice(r.raw, "messages") {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		blocks := adapter.Slice(msg, "content")
		for i, b := range blocks {
			block, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			if tu := adapter.Map(block, "toolUse"); tu != nil && encode {
				tu["name"] = encodeToolName(adapter.Str(tu, "name"))
			}
			if tr := adapter.Map(block, "toolResult"); tr != nil {
				if override, ok := r.overrides[adapter.Str(tr, "toolUseId")]; ok {
					tr["content"] = []interface{}{map[string]interface{}{"text": override}}
				}
			}
			if r.opts.ConvertImages && adapter.Str(block, "type") == "image" {
				blocks[i] = convertImageBlock(block)
			}
		}
	}

	out, err := json.Marshal(r.raw)
	if err != nil {
		return nil, fmt.Errorf("materializing bedrock request: %w", err)
	}
	return out, nil
}

// toolUseNames maps toolUseId → original tool name from assistant
// toolUse blocks.
func (r *Request) toolUseNames() map[string]string {
	names := map[string]string{}
	for _, m := range adapter.Slice(r.raw, "messages") {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		for _, b := range adapter.Slice(msg, "content") {
			block, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			if tu := adapter.Map(block, "toolUse"); tu != nil {
				names[adapter.Str(tu, "toolUseId")] = adapter.Str(tu, "name")
			}
		}
	}
	return names
}

// convertImageBlock rewrites an MCP-style image block into the
// Converse image form; oversized payloads become a text block.
func convertImageBlock(block map[string]interface{}) map[string]interface{} {
	data := adapter.Str(block, "data")
	if adapter.ImageTooLarge(data) {
		return map[string]interface{}{"text": adapter.ImageOmittedPlaceholder}
	}
	format := strings.TrimPrefix(adapter.Str(block, "mimeType"), "image/")
	return map[string]interface{}{
		"image": map[string]interface{}{
			"format": format,
			"source": map[string]interface{}{"bytes": data},
		},
	}
}

// flattenResultContent reduces a toolResult content array to text.
func flattenResultContent(v interface{}) string {
	blocks, ok := v.([]interface{})
	if !ok {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		block, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		if t := adapter.Str(block, "text"); t != "" {
			parts = append(parts, t)
			continue
		}
		if j, ok := block["json"]; ok {
			payload, _ := json.Marshal(j)
			parts = append(parts, string(payload))
		}
	}
	return strings.Join(parts, "\n")
}
