// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the gateway.
// This package breaks import cycles by providing the common message,
// tool, and accounting types that the proxy, policy, and storage
// packages all depend on.
package types

import (
	"encoding/json"
	"time"
)

// Provider identifies an upstream LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderBedrock   Provider = "bedrock"
	ProviderCohere    Provider = "cohere"
	ProviderMistral   Provider = "mistral"
	ProviderCerebras  Provider = "cerebras"
	ProviderOllama    Provider = "ollama"
	ProviderVLLM      Provider = "vllm"
	ProviderZhipuai   Provider = "zhipuai"
)

// AllProviders lists every provider the gateway can front.
var AllProviders = []Provider{
	ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderBedrock,
	ProviderCohere, ProviderMistral, ProviderCerebras, ProviderOllama,
	ProviderVLLM, ProviderZhipuai,
}

// Valid reports whether p names a known provider.
func (p Provider) Valid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// OpenAICompatible reports whether the provider speaks the OpenAI
// chat-completions wire format.
func (p Provider) OpenAICompatible() bool {
	switch p {
	case ProviderOpenAI, ProviderMistral, ProviderCerebras, ProviderOllama,
		ProviderVLLM, ProviderZhipuai:
		return true
	}
	return false
}

// ToolResult is a tool-execution payload supplied by the client,
// paired to the tool call that produced it.
type ToolResult struct {
	// ID is the tool-call id this result answers.
	ID string

	// Name is the tool name, when the provider wire carries it.
	Name string

	// Content is the raw result payload as a string.
	Content string

	// IsError marks results the client flagged as execution failures.
	IsError bool
}

// Message is the provider-independent view over a provider message.
// It is derived from the raw provider request; mutations never flow
// back through this view; they flow through the request envelope's
// tool-result overrides.
type Message struct {
	// Role is the message sender (system, user, assistant, tool).
	Role string

	// Content is the flattened text content.
	Content string

	// ToolResults contains tool-execution payloads carried by this
	// message (tool-role messages or tool_result blocks).
	ToolResults []ToolResult
}

// ToolDefinition is the provider-independent view of a tool declared
// by the client.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is a tool invocation produced by the model. Arguments is
// either a decoded object (Anthropic, Gemini, Bedrock) or the raw
// JSON string (OpenAI family).
type ToolCall struct {
	ID        string
	Name      string
	Arguments interface{}
}

// GlobalToolPolicy is the organization-wide default answer when no
// per-agent rule applies.
type GlobalToolPolicy string

const (
	PolicyPermissive  GlobalToolPolicy = "permissive"
	PolicyRestrictive GlobalToolPolicy = "restrictive"
)

// ToolPolicyRule is a per-agent allow or deny rule matched by tool name.
type ToolPolicyRule struct {
	ToolName string
	Allow    bool
}

// Agent is the logical principal making LLM calls (also called a
// profile). Loaded by an injected collaborator; never written by the
// core.
type Agent struct {
	ID                       string
	OrganizationID           string
	Name                     string
	TeamIDs                  []string
	ConsiderContextUntrusted bool
	EnabledTools             []string
	ToolPolicies             []ToolPolicyRule
}

// Usage carries token counts reported by the upstream provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// TokenPrice is one row of the pricing table, in USD per million tokens.
type TokenPrice struct {
	Model            string
	Provider         Provider
	InputPerMillion  float64
	OutputPerMillion float64
}

// OptimizationRule substitutes the requested model when its predicate
// matches. Priority is total within (organization, provider); lower
// sorts first.
type OptimizationRule struct {
	ID             string
	OrganizationID string
	Provider       Provider
	MinTokens      *int
	MaxTokens      *int
	RequiresTools  *bool
	ForbidsTools   *bool
	TargetModel    string
	Priority       int
	Enabled        bool
}

// Matches evaluates the rule predicate against the request's token
// count and tool presence.
func (r *OptimizationRule) Matches(tokenCount int, hasTools bool) bool {
	if r.MinTokens != nil && tokenCount < *r.MinTokens {
		return false
	}
	if r.MaxTokens != nil && tokenCount > *r.MaxTokens {
		return false
	}
	if r.RequiresTools != nil && *r.RequiresTools && !hasTools {
		return false
	}
	if r.ForbidsTools != nil && *r.ForbidsTools && hasTools {
		return false
	}
	return true
}

// Verdict is the dual-LLM classification of one tool result.
type Verdict struct {
	ToolCallID string
	IsTrusted  bool
	Sanitized  string
	Reasoning  string
}

// Interaction is the persisted record of one gateway request.
// Immutable after creation. Pointer fields are nullable columns:
// token counts and costs are undefined when the upstream reported no
// usage or the model has no price row.
type Interaction struct {
	ID               string
	ProfileID        string
	ExternalAgentID  string
	ExecutionID      string
	UserID           string
	SessionID        string
	SessionSource    string
	Type             string
	Request          json.RawMessage
	ProcessedRequest json.RawMessage
	Response         json.RawMessage
	Model            string
	BaselineModel    string
	InputTokens      *int
	OutputTokens     *int
	Cost             *float64
	BaselineCost     *float64
	ToonTokensBefore *int
	ToonTokensAfter  *int
	ToonCostSavings  *float64
	ToonSkipReason   string
	CreatedAt        time.Time
}

// Interaction type tags.
const (
	InteractionTypeChat    = "chat"
	InteractionTypeRefused = "refused"
)

// TOON skip reasons recorded when compression did not apply.
const (
	ToonSkipNotEnabled    = "not_enabled"
	ToonSkipNoToolResults = "no_tool_results"
	ToonSkipNotEffective  = "not_effective"
)

// IntPtr returns a pointer to n. Convenience for nullable columns.
func IntPtr(n int) *int { return &n }

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 { return &f }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
