// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cohere

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

// streamEvent covers the v2 chat event shapes; the type field
// discriminates.
type streamEvent struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Index int    `json:"index,omitempty"`

	Delta *struct {
		Message *struct {
			Content *struct {
				Text string `json:"text,omitempty"`
			} `json:"content,omitempty"`
			ToolCalls *struct {
				ID       string `json:"id,omitempty"`
				Function *struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function,omitempty"`
			} `json:"tool_calls,omitempty"`
		} `json:"message,omitempty"`
		FinishReason string     `json:"finish_reason,omitempty"`
		Usage        *wireUsage `json:"usage,omitempty"`
	} `json:"delta,omitempty"`
}

// Stream processes v2 chat SSE events. tool-call-start/delta/end are
// buffered by tool index; message-end is held until FormatEnd.
type Stream struct {
	reader *adapter.SSEReader
	acc    adapter.Accumulator

	toolIdx    map[int]int
	toolArgs   map[int]*strings.Builder
	rawTool    [][]byte
	pendingEnd [][]byte
	refused    bool
}

func newStream(upstream io.Reader) *Stream {
	return &Stream{
		reader:   adapter.NewSSEReader(upstream),
		acc:      adapter.Accumulator{Start: time.Now()},
		toolIdx:  map[int]int{},
		toolArgs: map[int]*strings.Builder{},
	}
}

func (s *Stream) Accumulator() *adapter.Accumulator { return &s.acc }

func (s *Stream) Next() (adapter.ChunkResult, error) {
	ev, err := s.reader.Next()
	if err != nil {
		s.finalizeTools()
		return adapter.ChunkResult{}, err
	}
	s.acc.MarkChunk()

	var event streamEvent
	if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil
	}

	switch event.Type {
	case "message-start":
		if event.ID != "" {
			s.acc.ResponseID = event.ID
		}
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil

	case "content-delta":
		if event.Delta != nil && event.Delta.Message != nil && event.Delta.Message.Content != nil {
			s.acc.AddText(event.Delta.Message.Content.Text)
		}
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil

	case "tool-call-start":
		idx := len(s.acc.ToolCalls)
		s.toolIdx[event.Index] = idx
		s.toolArgs[event.Index] = &strings.Builder{}
		call := types.ToolCall{}
		if event.Delta != nil && event.Delta.Message != nil && event.Delta.Message.ToolCalls != nil {
			tc := event.Delta.Message.ToolCalls
			call.ID = tc.ID
			if tc.Function != nil {
				call.Name = tc.Function.Name
				s.toolArgs[event.Index].WriteString(tc.Function.Arguments)
			}
		}
		s.acc.ToolCalls = append(s.acc.ToolCalls, call)
		s.rawTool = append(s.rawTool, ev.Raw())
		return adapter.ChunkResult{IsToolCall: true}, nil

	case "tool-call-delta":
		if buf, ok := s.toolArgs[event.Index]; ok {
			if event.Delta != nil && event.Delta.Message != nil &&
				event.Delta.Message.ToolCalls != nil && event.Delta.Message.ToolCalls.Function != nil {
				buf.WriteString(event.Delta.Message.ToolCalls.Function.Arguments)
			}
		}
		s.rawTool = append(s.rawTool, ev.Raw())
		return adapter.ChunkResult{IsToolCall: true}, nil

	case "tool-call-end":
		s.rawTool = append(s.rawTool, ev.Raw())
		return adapter.ChunkResult{IsToolCall: true}, nil

	case "message-end":
		if event.Delta != nil {
			s.acc.StopReason = event.Delta.FinishReason
			if event.Delta.Usage != nil && event.Delta.Usage.Tokens != nil {
				s.acc.Usage = &types.Usage{
					InputTokens:  int(event.Delta.Usage.Tokens.InputTokens),
					OutputTokens: int(event.Delta.Usage.Tokens.OutputTokens),
				}
			}
		}
		s.finalizeTools()
		s.pendingEnd = append(s.pendingEnd, ev.Raw())
		return adapter.ChunkResult{IsFinal: true}, nil
	}

	// content-start, content-end, tool-plan-delta and future types
	// pass through.
	return adapter.ChunkResult{SSEData: ev.Raw()}, nil
}

func (s *Stream) finalizeTools() {
	for evIdx, buf := range s.toolArgs {
		if idx, ok := s.toolIdx[evIdx]; ok {
			s.acc.ToolCalls[idx].Arguments = buf.String()
		}
	}
}

func (s *Stream) SSEHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return h
}

func (s *Stream) FormatTextDelta(text string) []byte {
	return event(map[string]interface{}{
		"type": "content-delta",
		"delta": map[string]interface{}{
			"message": map[string]interface{}{
				"content": map[string]interface{}{"type": "text", "text": text},
			},
		},
	})
}

func (s *Stream) FormatCompleteText(text string) []byte {
	s.refused = true
	var out bytes.Buffer
	out.Write(event(map[string]interface{}{"type": "content-start", "index": 0}))
	out.Write(s.FormatTextDelta(text))
	out.Write(event(map[string]interface{}{"type": "content-end", "index": 0}))
	return out.Bytes()
}

func (s *Stream) RawToolCallEvents() [][]byte { return s.rawTool }

func (s *Stream) FormatEnd() []byte {
	if !s.refused && len(s.pendingEnd) > 0 {
		return bytes.Join(s.pendingEnd, nil)
	}

	payload := map[string]interface{}{
		"type":  "message-end",
		"delta": map[string]interface{}{"finish_reason": "COMPLETE"},
	}
	if s.acc.Usage != nil {
		payload["delta"].(map[string]interface{})["usage"] = map[string]interface{}{
			"tokens": map[string]interface{}{
				"input_tokens":  s.acc.Usage.InputTokens,
				"output_tokens": s.acc.Usage.OutputTokens,
			},
		}
	}
	return event(payload)
}

func event(payload interface{}) []byte {
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}
