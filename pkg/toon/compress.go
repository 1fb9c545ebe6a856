// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toon

import (
	"encoding/json"

	"github.com/archestra-ai/gateway/pkg/tokenizer"
	"github.com/archestra-ai/gateway/pkg/types"
)

// ToolResultSource exposes a request's tool results for rewriting.
// Provider request adapters implement it.
type ToolResultSource interface {
	ToolResults() []types.ToolResult
	UpdateToolResult(id, content string) bool
}

// Stats accounts for one compression pass over a request.
type Stats struct {
	TokensBefore   int
	TokensAfter    int
	CostSavings    float64
	WasEffective   bool
	HadToolResults bool
}

// SkipReason returns the recorded skip reason for this pass, or ""
// when compression was applied effectively.
func (s Stats) SkipReason(enabled bool) string {
	switch {
	case !enabled:
		return types.ToonSkipNotEnabled
	case !s.HadToolResults:
		return types.ToonSkipNoToolResults
	case !s.WasEffective:
		return types.ToonSkipNotEffective
	}
	return ""
}

// clientWrapper is the common client-side envelope around tool-result
// payloads: [{"type":"text","text":"<json>"}].
type clientWrapper []struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CompressToolResults rewrites every JSON tool result in src to TOON
// when the TOON form counts fewer tokens. Error results are skipped.
// inputPerMillion is the model's input price in USD per million
// tokens; savings are max(0, before-after) priced at that rate.
func CompressToolResults(src ToolResultSource, counter tokenizer.Counter, inputPerMillion float64) Stats {
	var stats Stats
	for _, tr := range src.ToolResults() {
		if tr.IsError {
			continue
		}
		stats.HadToolResults = true

		payload := unwrap(tr.Content)
		var decoded interface{}
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil || !isStructured(decoded) {
			// Not JSON (or scalar JSON with nothing to compact):
			// count it once so before == after for this result.
			n := counter.CountText(payload)
			stats.TokensBefore += n
			stats.TokensAfter += n
			continue
		}

		encoded := Encode(decoded)
		before := counter.CountText(payload)
		after := counter.CountText(encoded)
		if after < before {
			if src.UpdateToolResult(tr.ID, encoded) {
				stats.WasEffective = true
			} else {
				after = before
			}
		} else {
			after = before
		}
		stats.TokensBefore += before
		stats.TokensAfter += after
	}

	if saved := stats.TokensBefore - stats.TokensAfter; saved > 0 {
		stats.CostSavings = float64(saved) / 1_000_000 * inputPerMillion
	}
	return stats
}

// unwrap strips the client-side [{"type":"text","text":...}] envelope,
// returning the inner text when the wrapper matches and the original
// content otherwise.
func unwrap(content string) string {
	var wrapper clientWrapper
	if err := json.Unmarshal([]byte(content), &wrapper); err != nil {
		return content
	}
	if len(wrapper) == 1 && wrapper[0].Type == "text" && wrapper[0].Text != "" {
		return wrapper[0].Text
	}
	return content
}

func isStructured(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}
