// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pricing

import (
	"strings"

	"github.com/archestra-ai/gateway/pkg/types"
)

// knownPrices seeds pricing for the models we can identify, in USD
// per million tokens.
var knownPrices = map[string]types.TokenPrice{
	// Anthropic
	"claude-sonnet-4-5-20250929": {Provider: types.ProviderAnthropic, InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-3-5-sonnet-20241022": {Provider: types.ProviderAnthropic, InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-3-5-haiku-20241022":  {Provider: types.ProviderAnthropic, InputPerMillion: 0.8, OutputPerMillion: 4.0},
	"claude-3-opus-20240229":     {Provider: types.ProviderAnthropic, InputPerMillion: 15.0, OutputPerMillion: 75.0},

	// OpenAI
	"gpt-4o":      {Provider: types.ProviderOpenAI, InputPerMillion: 2.5, OutputPerMillion: 10.0},
	"gpt-4o-mini": {Provider: types.ProviderOpenAI, InputPerMillion: 0.15, OutputPerMillion: 0.6},
	"gpt-4-turbo": {Provider: types.ProviderOpenAI, InputPerMillion: 10.0, OutputPerMillion: 30.0},
	"gpt-4.1":     {Provider: types.ProviderOpenAI, InputPerMillion: 2.0, OutputPerMillion: 8.0},

	// Gemini
	"gemini-1.5-pro":   {Provider: types.ProviderGemini, InputPerMillion: 1.25, OutputPerMillion: 5.0},
	"gemini-2.0-flash": {Provider: types.ProviderGemini, InputPerMillion: 0.1, OutputPerMillion: 0.4},

	// Bedrock
	"us.anthropic.claude-sonnet-4-5-20250929-v1:0": {Provider: types.ProviderBedrock, InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"us.amazon.nova-pro-v1:0":                      {Provider: types.ProviderBedrock, InputPerMillion: 0.8, OutputPerMillion: 3.2},
	"us.amazon.nova-lite-v1:0":                     {Provider: types.ProviderBedrock, InputPerMillion: 0.06, OutputPerMillion: 0.24},

	// Cohere
	"command-r-plus": {Provider: types.ProviderCohere, InputPerMillion: 2.5, OutputPerMillion: 10.0},
	"command-r":      {Provider: types.ProviderCohere, InputPerMillion: 0.15, OutputPerMillion: 0.6},

	// Mistral
	"mistral-large-latest": {Provider: types.ProviderMistral, InputPerMillion: 2.0, OutputPerMillion: 6.0},
	"mistral-small-latest": {Provider: types.ProviderMistral, InputPerMillion: 0.2, OutputPerMillion: 0.6},
}

// providerDefaults price unknown models per provider. Self-hosted
// providers default to free.
var providerDefaults = map[types.Provider]types.TokenPrice{
	types.ProviderAnthropic: {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	types.ProviderOpenAI:    {InputPerMillion: 2.5, OutputPerMillion: 10.0},
	types.ProviderGemini:    {InputPerMillion: 1.25, OutputPerMillion: 5.0},
	types.ProviderBedrock:   {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	types.ProviderCohere:    {InputPerMillion: 2.5, OutputPerMillion: 10.0},
	types.ProviderMistral:   {InputPerMillion: 2.0, OutputPerMillion: 6.0},
	types.ProviderCerebras:  {InputPerMillion: 0.6, OutputPerMillion: 1.2},
	types.ProviderZhipuai:   {InputPerMillion: 0.6, OutputPerMillion: 2.2},
	types.ProviderOllama:    {},
	types.ProviderVLLM:      {},
}

// defaultPrice builds the row inserted on first miss for a model.
func defaultPrice(provider types.Provider, model string) types.TokenPrice {
	if price, ok := knownPrices[normalizeModel(model)]; ok {
		price.Model = model
		return price
	}
	price := providerDefaults[provider]
	price.Provider = provider
	price.Model = model
	return price
}

// normalizeModel strips a trailing ":tag" (Ollama-style) so tagged
// variants share the base model's row.
func normalizeModel(model string) string {
	if _, ok := knownPrices[model]; ok {
		return model
	}
	if i := strings.LastIndex(model, ":"); i > 0 && !strings.Contains(model[:i], ".") {
		return model[:i]
	}
	return model
}
