// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toon

import (
	"encoding/json"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archestra-ai/gateway/pkg/types"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			name: "flat object",
			json: `{"name":"alice","age":30,"active":true}`,
			want: "active: true\nage: 30\nname: alice",
		},
		{
			name: "nested object",
			json: `{"user":{"id":1,"name":"bob"}}`,
			want: "user:\n  id: 1\n  name: bob",
		},
		{
			name: "scalar array inline",
			json: `{"tags":["a","b","c"]}`,
			want: "tags[3]: a,b,c",
		},
		{
			name: "uniform object array is tabular",
			json: `{"rows":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`,
			want: "rows[2]{id,name}:\n  1,a\n  2,b",
		},
		{
			name: "strings needing quotes",
			json: `{"note":"a, b: c","num":"42"}`,
			want: "note: \"a, b: c\"\nnum: \"42\"",
		},
		{
			name: "null and bool scalars",
			json: `{"a":null,"b":false}`,
			want: "a: null\nb: false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(decode(t, tt.json)))
		})
	}
}

func TestEncode_MixedArrayFallsBackToList(t *testing.T) {
	got := Encode(decode(t, `{"items":[1,{"a":2}]}`))
	assert.Contains(t, got, "items[2]:")
	assert.Contains(t, got, "- 1")
	assert.Contains(t, got, "a: 2")
}

func TestEncode_ShorterThanJSONForTables(t *testing.T) {
	raw := `{"rows":[{"id":1,"city":"paris","pop":2100000},{"id":2,"city":"lyon","pop":520000},{"id":3,"city":"nice","pop":340000}]}`
	assert.Less(t, len(Encode(decode(t, raw))), len(raw))
}

// fakeCounter approximates BPE behavior deterministically: one token
// per alphanumeric run, one per punctuation character. This keeps the
// tests independent of whether a tiktoken encoding is loadable, while
// preserving the property that brace-heavy JSON costs more than TOON.
type fakeCounter struct{}

func (fakeCounter) CountText(text string) int {
	tokens := 0
	inRun := false
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inRun {
				tokens++
				inRun = true
			}
		case unicode.IsSpace(r):
			inRun = false
		default:
			tokens++
			inRun = false
		}
	}
	return tokens
}

func (f fakeCounter) CountMessages(ms []types.Message) int {
	total := 0
	for _, m := range ms {
		total += f.CountText(m.Content)
	}
	return total
}

// fakeSource is an in-memory ToolResultSource.
type fakeSource struct {
	results []types.ToolResult
	updates map[string]string
}

func (f *fakeSource) ToolResults() []types.ToolResult { return f.results }
func (f *fakeSource) UpdateToolResult(id, content string) bool {
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	for _, tr := range f.results {
		if tr.ID == id {
			f.updates[id] = content
			return true
		}
	}
	return false
}

func TestCompressToolResults_Effective(t *testing.T) {
	// Brace-heavy JSON: the TOON table form costs far fewer tokens.
	src := &fakeSource{results: []types.ToolResult{
		{ID: "t1", Content: `{"rows":[{"id":1,"name":"a"},{"id":2,"name":"b"},{"id":3,"name":"c"}]}`},
	}}

	stats := CompressToolResults(src, fakeCounter{}, 3.0)

	assert.True(t, stats.HadToolResults)
	assert.True(t, stats.WasEffective)
	assert.Greater(t, stats.TokensBefore, stats.TokensAfter)
	assert.Greater(t, stats.CostSavings, 0.0)
	require.Contains(t, src.updates, "t1")
	assert.Equal(t, Encode(decode(t, src.results[0].Content)), src.updates["t1"])
}

func TestCompressToolResults_NotJSONCountedOnce(t *testing.T) {
	src := &fakeSource{results: []types.ToolResult{
		{ID: "t1", Content: "plain text result, not json at all"},
	}}

	stats := CompressToolResults(src, fakeCounter{}, 3.0)

	assert.True(t, stats.HadToolResults)
	assert.False(t, stats.WasEffective)
	assert.Equal(t, stats.TokensBefore, stats.TokensAfter)
	assert.Zero(t, stats.CostSavings)
	assert.Empty(t, src.updates)
}

func TestCompressToolResults_ErrorResultsSkipped(t *testing.T) {
	src := &fakeSource{results: []types.ToolResult{
		{ID: "t1", Content: `{"a":[1,2,3]}`, IsError: true},
	}}

	stats := CompressToolResults(src, fakeCounter{}, 3.0)

	assert.False(t, stats.HadToolResults)
	assert.Zero(t, stats.TokensBefore)
	assert.Empty(t, src.updates)
}

func TestCompressToolResults_UnwrapsClientEnvelope(t *testing.T) {
	inner := `{"rows":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`
	wrapped, err := json.Marshal([]map[string]string{{"type": "text", "text": inner}})
	require.NoError(t, err)

	src := &fakeSource{results: []types.ToolResult{{ID: "t1", Content: string(wrapped)}}}
	stats := CompressToolResults(src, fakeCounter{}, 3.0)

	assert.True(t, stats.WasEffective)
	assert.Equal(t, Encode(decode(t, inner)), src.updates["t1"])
}

func TestStats_SkipReason(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		stats   Stats
		want    string
	}{
		{"disabled", false, Stats{}, types.ToonSkipNotEnabled},
		{"no results", true, Stats{}, types.ToonSkipNoToolResults},
		{"not effective", true, Stats{HadToolResults: true}, types.ToonSkipNotEffective},
		{"effective", true, Stats{HadToolResults: true, WasEffective: true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stats.SkipReason(tt.enabled))
		})
	}
}

func TestCompressToolResults_StatsInvariant(t *testing.T) {
	// tokensBefore >= tokensAfter must hold for any input mix.
	src := &fakeSource{results: []types.ToolResult{
		{ID: "a", Content: `{"k":"v"}`},
		{ID: "b", Content: "free text"},
		{ID: "c", Content: `{"rows":[{"x":1,"y":2},{"x":3,"y":4}]}`},
	}}
	stats := CompressToolResults(src, fakeCounter{}, 1.0)
	assert.GreaterOrEqual(t, stats.TokensBefore, stats.TokensAfter)
}
