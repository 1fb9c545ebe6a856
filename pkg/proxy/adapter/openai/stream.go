// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package openai

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

type deltaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function *struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string          `json:"role,omitempty"`
			Content   *string         `json:"content,omitempty"`
			ToolCalls []deltaToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage,omitempty"`
}

// Stream processes chat-completion chunks. Text deltas pass through;
// tool-call deltas are buffered and accumulated by tool index; the
// finish chunk, the usage chunk, and the [DONE] terminator are held
// until FormatEnd. The first role-only delta is dropped from the
// client stream.
type Stream struct {
	reader *adapter.SSEReader
	acc    adapter.Accumulator

	toolIdx    map[int]int // delta tool index → acc.ToolCalls index
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

	if strings.TrimSpace(ev.Data) == "[DONE]" {
		s.finalizeTools()
		s.pendingEnd = append(s.pendingEnd, ev.Raw())
		return adapter.ChunkResult{IsFinal: true}, nil
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil
	}
	if chunk.ID != "" {
		s.acc.ResponseID = chunk.ID
	}
	if chunk.Model != "" {
		s.acc.Model = chunk.Model
	}
	if chunk.Usage != nil {
		s.acc.Usage = &types.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
		if len(chunk.Choices) == 0 {
			// Trailing usage-only chunk (stream_options).
			s.pendingEnd = append(s.pendingEnd, ev.Raw())
			return adapter.ChunkResult{IsFinal: true}, nil
		}
	}
	if len(chunk.Choices) == 0 {
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil
	}
	choice := chunk.Choices[0]

	if len(choice.Delta.ToolCalls) > 0 {
		for _, tc := range choice.Delta.ToolCalls {
			idx, tracked := s.toolIdx[tc.Index]
			if !tracked {
				idx = len(s.acc.ToolCalls)
				s.toolIdx[tc.Index] = idx
				s.toolArgs[tc.Index] = &strings.Builder{}
				s.acc.ToolCalls = append(s.acc.ToolCalls, types.ToolCall{})
			}
			if tc.ID != "" {
				s.acc.ToolCalls[idx].ID = tc.ID
			}
			if tc.Function != nil {
				if tc.Function.Name != "" {
					s.acc.ToolCalls[idx].Name = tc.Function.Name
				}
				s.toolArgs[tc.Index].WriteString(tc.Function.Arguments)
			}
		}
		s.rawTool = append(s.rawTool, ev.Raw())
		return adapter.ChunkResult{IsToolCall: true}, nil
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.acc.StopReason = *choice.FinishReason
		s.finalizeTools()
		s.pendingEnd = append(s.pendingEnd, ev.Raw())
		return adapter.ChunkResult{IsFinal: true}, nil
	}

	if choice.Delta.Content != nil {
		s.acc.AddText(*choice.Delta.Content)
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil
	}

	if choice.Delta.Role != "" {
		// Role-only priming delta: accounted for, not forwarded.
		return adapter.ChunkResult{}, nil
	}
	return adapter.ChunkResult{SSEData: ev.Raw()}, nil
}

// finalizeTools moves accumulated argument fragments into the
// accumulator's tool calls.
func (s *Stream) finalizeTools() {
	for tcIdx, buf := range s.toolArgs {
		if idx, ok := s.toolIdx[tcIdx]; ok {
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
	return s.chunk(map[string]interface{}{"content": text}, nil)
}

func (s *Stream) FormatCompleteText(text string) []byte {
	s.refused = true
	return s.chunk(map[string]interface{}{"role": "assistant", "content": text}, nil)
}

func (s *Stream) RawToolCallEvents() [][]byte { return s.rawTool }

func (s *Stream) FormatEnd() []byte {
	if !s.refused && len(s.pendingEnd) > 0 {
		return bytes.Join(s.pendingEnd, nil)
	}

	var out bytes.Buffer
	out.Write(s.chunk(map[string]interface{}{}, strPtr("stop")))
	out.Write([]byte("data: [DONE]\n\n"))
	return out.Bytes()
}

// chunk renders one chat.completion.chunk frame.
func (s *Stream) chunk(delta map[string]interface{}, finish *string) []byte {
	payload := map[string]interface{}{
		"id":      s.acc.ResponseID,
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   s.acc.Model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	}
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}

func strPtr(s string) *string { return &s }
