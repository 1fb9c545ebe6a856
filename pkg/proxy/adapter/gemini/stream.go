// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Stream processes streamGenerateContent SSE chunks. Chunks carrying
// functionCall parts are buffered; chunks carrying a finishReason are
// held as final framing so tool replay always precedes them.
// inlineData parts (image generation) pass through verbatim.
type Stream struct {
	reader *adapter.SSEReader
	acc    adapter.Accumulator

	rawTool    [][]byte
	pendingEnd [][]byte
	refused    bool
}

func newStream(upstream io.Reader) *Stream {
	return &Stream{
		reader: adapter.NewSSEReader(upstream),
		acc:    adapter.Accumulator{Start: time.Now()},
	}
}

func (s *Stream) Accumulator() *adapter.Accumulator { return &s.acc }

func (s *Stream) Next() (adapter.ChunkResult, error) {
	ev, err := s.reader.Next()
	if err != nil {
		return adapter.ChunkResult{}, err
	}
	s.acc.MarkChunk()

	var chunk wireResponse
	if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil
	}
	if chunk.ResponseID != "" {
		s.acc.ResponseID = chunk.ResponseID
	}
	if chunk.ModelVersion != "" {
		s.acc.Model = chunk.ModelVersion
	}
	if chunk.UsageMetadata != nil {
		s.acc.Usage = &types.Usage{
			InputTokens:  chunk.UsageMetadata.PromptTokenCount,
			OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
		}
	}
	if len(chunk.Candidates) == 0 {
		return adapter.ChunkResult{SSEData: ev.Raw()}, nil
	}
	candidate := chunk.Candidates[0]

	hasTool := false
	for _, p := range candidate.Content.Parts {
		if p.FunctionCall != nil {
			hasTool = true
			s.acc.ToolCalls = append(s.acc.ToolCalls, types.ToolCall{
				ID:        p.FunctionCall.Name,
				Name:      p.FunctionCall.Name,
				Arguments: p.FunctionCall.Args,
			})
		}
		if p.Text != "" {
			s.acc.AddText(p.Text)
		}
	}
	if candidate.FinishReason != "" {
		s.acc.StopReason = candidate.FinishReason
	}

	if hasTool {
		s.rawTool = append(s.rawTool, ev.Raw())
		return adapter.ChunkResult{IsToolCall: true, IsFinal: candidate.FinishReason != ""}, nil
	}
	if candidate.FinishReason != "" {
		s.pendingEnd = append(s.pendingEnd, ev.Raw())
		return adapter.ChunkResult{IsFinal: true}, nil
	}
	return adapter.ChunkResult{SSEData: ev.Raw()}, nil
}

func (s *Stream) SSEHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return h
}

func (s *Stream) FormatTextDelta(text string) []byte {
	return s.chunk(text, "")
}

func (s *Stream) FormatCompleteText(text string) []byte {
	s.refused = true
	return s.chunk(text, "")
}

func (s *Stream) RawToolCallEvents() [][]byte { return s.rawTool }

func (s *Stream) FormatEnd() []byte {
	if !s.refused && len(s.pendingEnd) > 0 {
		return bytes.Join(s.pendingEnd, nil)
	}
	return s.chunk("", "STOP")
}

func (s *Stream) chunk(text, finish string) []byte {
	var parts []wirePart
	if text != "" {
		parts = []wirePart{{Text: text}}
	}
	payload := wireResponse{
		Candidates: []wireCandidate{{
			Content:      wireContent{Role: "model", Parts: parts},
			FinishReason: finish,
		}},
		ModelVersion: s.acc.Model,
		ResponseID:   s.acc.ResponseID,
	}
	if finish != "" && s.acc.Usage != nil {
		payload.UsageMetadata = &wireUsage{
			PromptTokenCount:     s.acc.Usage.InputTokens,
			CandidatesTokenCount: s.acc.Usage.OutputTokens,
			TotalTokenCount:      s.acc.Usage.InputTokens + s.acc.Usage.OutputTokens,
		}
	}
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}
