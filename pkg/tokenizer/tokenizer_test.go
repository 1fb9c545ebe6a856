// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/archestra-ai/gateway/pkg/types"
)

func TestForProvider_SharedPerFamily(t *testing.T) {
	a := ForProvider(types.ProviderOpenAI)
	b := ForProvider(types.ProviderMistral)
	c := ForProvider(types.ProviderAnthropic)

	assert.Same(t, a, b, "OpenAI-family providers share one tokenizer")
	assert.NotSame(t, a, c, "Anthropic uses a different encoding")
}

func TestCountText_Monotonic(t *testing.T) {
	counter := ForProvider(types.ProviderAnthropic)

	short := counter.CountText("hello")
	long := counter.CountText(strings.Repeat("hello world ", 50))

	assert.Greater(t, long, short)
	assert.GreaterOrEqual(t, short, 1)
}

func TestCountText_Empty(t *testing.T) {
	counter := ForProvider(types.ProviderOpenAI)
	assert.Equal(t, 0, counter.CountText(""))
}

func TestCountMessages_IncludesToolResults(t *testing.T) {
	counter := ForProvider(types.ProviderOpenAI)

	bare := []types.Message{{Role: "user", Content: "hi"}}
	withResult := []types.Message{
		{Role: "user", Content: "hi"},
		{Role: "tool", ToolResults: []types.ToolResult{
			{ID: "t1", Content: strings.Repeat(`{"rows":[1,2,3]}`, 20)},
		}},
	}

	assert.Greater(t, counter.CountMessages(withResult), counter.CountMessages(bare))
}

func TestFallbackEstimate(t *testing.T) {
	// A tokenizer with no encoder must estimate, never panic.
	tk := &tokenizer{}
	assert.Equal(t, 25, tk.CountText(strings.Repeat("a", 100)))
}
