// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package anthropic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// streamEvent covers every Messages API SSE event shape.
type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	Message *struct {
		ID    string    `json:"id"`
		Model string    `json:"model"`
		Usage wireUsage `json:"usage"`
	} `json:"message,omitempty"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block,omitempty"`

	Delta *struct {
		Type        string `json:"type,omitempty"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`

	Usage *wireUsage `json:"usage,omitempty"`
}

// Stream processes the named SSE events of the Messages API. Text
// blocks pass through; tool_use blocks are buffered by content-block
// index; message_delta and message_stop are held until FormatEnd so
// policy always runs before any tool byte reaches the client.
type Stream struct {
	reader *adapter.SSEReader
	acc    adapter.Accumulator

	toolIndexes map[int]int // content-block index → acc.ToolCalls index
	toolInputs  map[int]*strings.Builder
	rawTool     [][]byte
	pendingEnd  [][]byte
	maxIndex    int
	refused     bool
}

func newStream(upstream io.Reader) *Stream {
	return &Stream{
		reader:      adapter.NewSSEReader(upstream),
		acc:         adapter.Accumulator{Start: time.Now()},
		toolIndexes: map[int]int{},
		toolInputs:  map[int]*strings.Builder{},
	}
}

func (s *Stream) Accumulator() *adapter.Accumulator { return &s.acc }

func (s *Stream) Next() (adapter.ChunkResult, error) {
	ev, err := s.reader.Next()
	if err != nil {
		return adapter.ChunkResult{}, err
	}
	s.acc.MarkChunk()

	var event streamEvent
	if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
		// Malformed events pass through untouched.
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil
	}
	if event.Index > s.maxIndex {
		s.maxIndex = event.Index
	}

	switch event.Type {
	case "message_start":
		if event.Message != nil {
			s.acc.ResponseID = event.Message.ID
			s.acc.Model = event.Message.Model
			s.acc.Usage = &types.Usage{InputTokens: event.Message.Usage.InputTokens}
		}
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil

	case "content_block_start":
		if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
			s.toolIndexes[event.Index] = len(s.acc.ToolCalls)
			s.toolInputs[event.Index] = &strings.Builder{}
			s.acc.ToolCalls = append(s.acc.ToolCalls, types.ToolCall{
				ID:   event.ContentBlock.ID,
				Name: event.ContentBlock.Name,
			})
			s.rawTool = append(s.rawTool, ev.Raw())
			return adapter.ChunkResult{IsToolCall: true}, nil
		}
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil

	case "content_block_delta":
		if buf, ok := s.toolInputs[event.Index]; ok {
			if event.Delta != nil {
				buf.WriteString(event.Delta.PartialJSON)
			}
			s.rawTool = append(s.rawTool, ev.Raw())
			return adapter.ChunkResult{IsToolCall: true}, nil
		}
		if event.Delta != nil && event.Delta.Type == "text_delta" {
			s.acc.AddText(event.Delta.Text)
		}
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil

	case "content_block_stop":
		if idx, ok := s.toolIndexes[event.Index]; ok {
			if buf := s.toolInputs[event.Index]; buf.Len() > 0 {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(buf.String()), &input); err == nil {
					s.acc.ToolCalls[idx].Arguments = input
				}
			}
			delete(s.toolIndexes, event.Index)
			delete(s.toolInputs, event.Index)
			s.rawTool = append(s.rawTool, ev.Raw())
			return adapter.ChunkResult{IsToolCall: true}, nil
		}
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil

	case "message_delta":
		if event.Delta != nil && event.Delta.StopReason != "" {
			s.acc.StopReason = event.Delta.StopReason
		}
		if event.Usage != nil {
			if s.acc.Usage == nil {
				s.acc.Usage = &types.Usage{}
			}
			s.acc.Usage.OutputTokens = event.Usage.OutputTokens
		}
		s.pendingEnd = append(s.pendingEnd, ev.Raw())
		return adapter.ChunkResult{IsFinal: true}, nil

	case "message_stop":
		s.pendingEnd = append(s.pendingEnd, ev.Raw())
		return adapter.ChunkResult{IsFinal: true}, nil
	}

	// ping and any future event types pass through.
	return adapter.ChunkResult{SSEData: ev.Raw()}, nil
}

func (s *Stream) SSEHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("anthropic-ratelimit-requests-limit", "4000")
	h.Set("anthropic-ratelimit-requests-remaining", "3999")
	return h
}

func (s *Stream) FormatTextDelta(text string) []byte {
	event := sseEvent("content_block_delta", map[string]interface{}{
		"type":  "content_block_delta",
		"index": 0,
		"delta": map[string]interface{}{"type": "text_delta", "text": text},
	})
	return event
}

// FormatCompleteText frames a full synthesized text block on a fresh
// content-block index and flips the stream into refusal mode: the
// final framing reports end_turn instead of the upstream stop reason.
func (s *Stream) FormatCompleteText(text string) []byte {
	s.refused = true
	index := s.maxIndex + 1

	var out bytes.Buffer
	out.Write(sseEvent("content_block_start", map[string]interface{}{
		"type":          "content_block_start",
		"index":         index,
		"content_block": map[string]interface{}{"type": "text", "text": ""},
	}))
	out.Write(sseEvent("content_block_delta", map[string]interface{}{
		"type":  "content_block_delta",
		"index": index,
		"delta": map[string]interface{}{"type": "text_delta", "text": text},
	}))
	out.Write(sseEvent("content_block_stop", map[string]interface{}{
		"type":  "content_block_stop",
		"index": index,
	}))
	return out.Bytes()
}

func (s *Stream) RawToolCallEvents() [][]byte { return s.rawTool }

// FormatEnd replays the buffered upstream final events, or
// synthesizes message_delta + message_stop when refusing or when the
// upstream never sent them.
func (s *Stream) FormatEnd() []byte {
	if !s.refused && len(s.pendingEnd) > 0 {
		return bytes.Join(s.pendingEnd, nil)
	}

	outputTokens := 0
	if s.acc.Usage != nil {
		outputTokens = s.acc.Usage.OutputTokens
	}
	var out bytes.Buffer
	out.Write(sseEvent("message_delta", map[string]interface{}{
		"type":  "message_delta",
		"delta": map[string]interface{}{"stop_reason": "end_turn", "stop_sequence": nil},
		"usage": map[string]interface{}{"output_tokens": outputTokens},
	}))
	out.Write(sseEvent("message_stop", map[string]interface{}{"type": "message_stop"}))
	return out.Bytes()
}

func sseEvent(name string, payload interface{}) []byte {
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}
