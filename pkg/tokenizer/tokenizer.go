// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package tokenizer provides per-provider-family token counting used
// by the cost engine and the TOON compressor. Counts are advisory:
// they drive compression and model-substitution decisions, never
// billing (billing uses the usage the provider reports).
package tokenizer

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/archestra-ai/gateway/pkg/types"
)

// Counter counts tokens over text and common messages. Implementations
// are pure; no per-request state.
type Counter interface {
	CountText(text string) int
	CountMessages(messages []types.Message) int
}

// messageOverhead approximates the per-message formatting cost (role
// markers, separators) added by provider chat templates.
const messageOverhead = 4

// tokenizer wraps one tiktoken encoding. When the encoding cannot be
// loaded (no cached BPE data, no network) it falls back to the len/4
// estimate so counting never fails.
type tokenizer struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

func (t *tokenizer) CountText(text string) int {
	if t.encoder == nil {
		return len(text) / 4
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoder.Encode(text, nil, nil))
}

func (t *tokenizer) CountMessages(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += messageOverhead
		total += t.CountText(msg.Content)
		for _, tr := range msg.ToolResults {
			total += t.CountText(tr.Content)
		}
	}
	return total
}

// CountJSON counts the tokens of v's JSON encoding using c.
func CountJSON(c Counter, v interface{}) int {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return c.CountText(string(raw))
}

var (
	registry     = map[string]*tokenizer{}
	registryOnce sync.Mutex
)

// encodingFor maps a provider to its tokenizer family. The OpenAI
// family tokenizes with o200k_base (GPT-4o and later); everything else
// uses cl100k_base as a Claude-compatible approximation.
func encodingFor(provider types.Provider) string {
	if provider.OpenAICompatible() {
		return "o200k_base"
	}
	return "cl100k_base"
}

// ForProvider returns the shared Counter for a provider's family.
func ForProvider(provider types.Provider) Counter {
	return forEncoding(encodingFor(provider))
}

func forEncoding(encoding string) *tokenizer {
	registryOnce.Lock()
	defer registryOnce.Unlock()
	if t, ok := registry[encoding]; ok {
		return t
	}
	t := &tokenizer{}
	if enc, err := tiktoken.GetEncoding(encoding); err == nil {
		t.encoder = enc
	}
	registry[encoding] = t
	return t
}
