// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package factory maps provider tags to their adapter codecs.
package factory

import (
	"fmt"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/proxy/adapter/anthropic"
	"github.com/archestra-ai/gateway/pkg/proxy/adapter/bedrock"
	"github.com/archestra-ai/gateway/pkg/proxy/adapter/cohere"
	"github.com/archestra-ai/gateway/pkg/proxy/adapter/gemini"
	"github.com/archestra-ai/gateway/pkg/proxy/adapter/openai"
	"github.com/archestra-ai/gateway/pkg/types"
)

// ForProvider returns the codec for p. The OpenAI-compatible
// providers share one codec parameterized by tag.
func ForProvider(p types.Provider) (adapter.Codec, error) {
	switch {
	case p == types.ProviderAnthropic:
		return anthropic.New(), nil
	case p == types.ProviderGemini:
		return gemini.New(), nil
	case p == types.ProviderBedrock:
		return bedrock.New(), nil
	case p == types.ProviderCohere:
		return cohere.New(), nil
	case p.OpenAICompatible():
		return openai.New(p), nil
	}
	return nil, fmt.Errorf("unsupported provider %q", p)
}
