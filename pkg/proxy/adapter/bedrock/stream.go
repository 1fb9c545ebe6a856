// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package bedrock

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/archestra-ai/gateway/pkg/eventstream"
	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Stream processes binary converse-stream frames. Frames are decoded,
// tool names mapped back to the client's originals, and re-encoded
// with fresh padding, so outbound framing stays parseable by native
// eventstream clients. messageStop and metadata are buffered until
// after tool events are emitted or replaced.
type Stream struct {
	dec     *eventstream.Decoder
	acc     adapter.Accumulator
	nameMap map[string]string

	toolIdx    map[int]int // contentBlockIndex → acc.ToolCalls index
	toolInputs map[int]*strings.Builder
	rawTool    [][]byte
	pendingEnd [][]byte
	maxIndex   int
	refused    bool
}

func newStream(upstream io.Reader, nameMap map[string]string) *Stream {
	return &Stream{
		dec:        eventstream.NewDecoder(upstream),
		acc:        adapter.Accumulator{Start: time.Now()},
		nameMap:    nameMap,
		toolIdx:    map[int]int{},
		toolInputs: map[int]*strings.Builder{},
	}
}

func (s *Stream) Accumulator() *adapter.Accumulator { return &s.acc }

func (s *Stream) Next() (adapter.ChunkResult, error) {
	evt, err := s.dec.Next()
	if err != nil {
		return adapter.ChunkResult{}, err
	}
	s.acc.MarkChunk()

	index := blockIndex(evt.Payload)
	if index > s.maxIndex {
		s.maxIndex = index
	}

	switch evt.Type {
	case "messageStart":
		return adapter.ChunkResult{SSEData: s.encode(evt)}, nil

	case "contentBlockStart":
		start := adapter.Map(evt.Payload, "start")
		if tu := adapter.Map(start, "toolUse"); tu != nil {
			tu["name"] = decodeToolName(s.nameMap, adapter.Str(tu, "name"))
			s.toolIdx[index] = len(s.acc.ToolCalls)
			s.toolInputs[index] = &strings.Builder{}
			s.acc.ToolCalls = append(s.acc.ToolCalls, types.ToolCall{
				ID:   adapter.Str(tu, "toolUseId"),
				Name: adapter.Str(tu, "name"),
			})
			s.rawTool = append(s.rawTool, s.encode(evt))
			return adapter.ChunkResult{IsToolCall: true}, nil
		}
		return adapter.ChunkResult{SSEData: s.encode(evt)}, nil

	case "contentBlockDelta":
		delta := adapter.Map(evt.Payload, "delta")
		if _, tracked := s.toolIdx[index]; tracked {
			if tu := adapter.Map(delta, "toolUse"); tu != nil {
				s.toolInputs[index].WriteString(adapter.Str(tu, "input"))
			}
			s.rawTool = append(s.rawTool, s.encode(evt))
			return adapter.ChunkResult{IsToolCall: true}, nil
		}
		if text := adapter.Str(delta, "text"); text != "" {
			s.acc.AddText(text)
		}
		return adapter.ChunkResult{SSEData: s.encode(evt)}, nil

	case "contentBlockStop":
		if accIdx, tracked := s.toolIdx[index]; tracked {
			if buf := s.toolInputs[index]; buf.Len() > 0 {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(buf.String()), &input); err == nil {
					s.acc.ToolCalls[accIdx].Arguments = input
				}
			}
			delete(s.toolIdx, index)
			delete(s.toolInputs, index)
			s.rawTool = append(s.rawTool, s.encode(evt))
			return adapter.ChunkResult{IsToolCall: true}, nil
		}
		return adapter.ChunkResult{SSEData: s.encode(evt)}, nil

	case "messageStop":
		s.acc.StopReason = adapter.Str(evt.Payload, "stopReason")
		s.pendingEnd = append(s.pendingEnd, s.encode(evt))
		return adapter.ChunkResult{IsFinal: true}, nil

	case "metadata":
		if usage := adapter.Map(evt.Payload, "usage"); usage != nil {
			s.acc.Usage = &types.Usage{
				InputTokens:  adapter.Int(usage, "inputTokens"),
				OutputTokens: adapter.Int(usage, "outputTokens"),
			}
		}
		s.pendingEnd = append(s.pendingEnd, s.encode(evt))
		return adapter.ChunkResult{IsFinal: true}, nil
	}

	return adapter.ChunkResult{SSEData: s.encode(evt)}, nil
}

func (s *Stream) SSEHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/vnd.amazon.eventstream")
	h.Set("Transfer-Encoding", "chunked")
	return h
}

func (s *Stream) FormatTextDelta(text string) []byte {
	frame, _ := eventstream.Encode("contentBlockDelta", map[string]interface{}{
		"contentBlockIndex": 0,
		"delta":             map[string]interface{}{"text": text},
	})
	return frame
}

func (s *Stream) FormatCompleteText(text string) []byte {
	s.refused = true
	index := s.maxIndex + 1

	var out bytes.Buffer
	delta, _ := eventstream.Encode("contentBlockDelta", map[string]interface{}{
		"contentBlockIndex": index,
		"delta":             map[string]interface{}{"text": text},
	})
	stop, _ := eventstream.Encode("contentBlockStop", map[string]interface{}{
		"contentBlockIndex": index,
	})
	out.Write(delta)
	out.Write(stop)
	return out.Bytes()
}

func (s *Stream) RawToolCallEvents() [][]byte { return s.rawTool }

func (s *Stream) FormatEnd() []byte {
	if !s.refused && len(s.pendingEnd) > 0 {
		return bytes.Join(s.pendingEnd, nil)
	}

	var out bytes.Buffer
	stop, _ := eventstream.Encode("messageStop", map[string]interface{}{
		"stopReason": "end_turn",
	})
	out.Write(stop)

	usage := map[string]interface{}{"inputTokens": 0, "outputTokens": 0, "totalTokens": 0}
	if s.acc.Usage != nil {
		usage = map[string]interface{}{
			"inputTokens":  s.acc.Usage.InputTokens,
			"outputTokens": s.acc.Usage.OutputTokens,
			"totalTokens":  s.acc.Usage.InputTokens + s.acc.Usage.OutputTokens,
		}
	}
	meta, _ := eventstream.Encode("metadata", map[string]interface{}{"usage": usage})
	out.Write(meta)
	return out.Bytes()
}

// encode re-frames a decoded event with fresh padding.
func (s *Stream) encode(evt *eventstream.Event) []byte {
	frame, err := eventstream.Encode(evt.Type, evt.Payload)
	if err != nil {
		return nil
	}
	return frame
}

func blockIndex(payload map[string]interface{}) int {
	return adapter.Int(payload, "contentBlockIndex")
}
