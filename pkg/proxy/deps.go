// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package proxy is the policy-enforcing reverse proxy in front of the
// LLM providers. It owns request orchestration: agent resolution,
// limit checks, model substitution, dual-LLM evaluation, TOON
// compression, upstream dispatch, tool-invocation policy, and the
// interaction record. Everything outside that pipeline (agent CRUD,
// limits accounting, telemetry sinks) is reached through the injected
// collaborators below.
package proxy

import (
	"context"
	"net/http"

	"github.com/archestra-ai/gateway/pkg/pricing"
	"github.com/archestra-ai/gateway/pkg/trust"
	"github.com/archestra-ai/gateway/pkg/types"
)

// AgentStore loads agents and the organization-wide tool policy.
type AgentStore interface {
	// GetAgent returns nil, nil when no agent has the id.
	GetAgent(ctx context.Context, id string) (*types.Agent, error)

	// DefaultAgent returns the organization's default profile, used
	// when the request path carries no agent segment.
	DefaultAgent(ctx context.Context) (*types.Agent, error)

	GlobalToolPolicy(ctx context.Context, organizationID string) (types.GlobalToolPolicy, error)
}

// LimitChecker enforces usage and cost budgets before dispatch.
// A breach is reported as an error wrapping ErrLimitExceeded.
type LimitChecker interface {
	CheckLimits(ctx context.Context, agent *types.Agent) error
}

// ToolDefSaver persists the tool definitions a request declares.
type ToolDefSaver interface {
	SaveToolDefinitions(ctx context.Context, agentID string, defs []types.ToolDefinition) error
}

// InteractionStore persists interaction records.
type InteractionStore interface {
	SaveInteraction(ctx context.Context, rec *types.Interaction) error
}

// UserResolver maps a forwarded email to a user id. Used only when the
// explicit user-id header is absent.
type UserResolver interface {
	UserIDByEmail(ctx context.Context, email string) (string, error)
}

// Telemetry receives agent-execution events. The handler deduplicates
// execution ids before calling.
type Telemetry interface {
	AgentExecution(executionID, agentID string)
}

// Features are the runtime-toggleable pipeline stages.
type Features struct {
	ToonCompression bool
	DualLLM         bool
	ImageConversion bool
}

// Deps wires the handler. Agents, Interactions, and Pricing are
// required; the rest may be nil, disabling the corresponding stage.
type Deps struct {
	Agents       AgentStore
	Limits       LimitChecker
	ToolDefs     ToolDefSaver
	Interactions InteractionStore
	Users        UserResolver
	Telemetry    Telemetry

	Pricing *pricing.Engine

	// Features returns the current flag set; called per request so a
	// hot-reloaded config takes effect without restart. nil means all
	// features on.
	Features func() Features

	// BaseURL returns the upstream base URL for a provider. nil falls
	// back to the public endpoints.
	BaseURL func(types.Provider) string

	// HTTPClient is the upstream client; its transport is wrapped to
	// observe request durations. nil uses a default client.
	HTTPClient *http.Client

	// AuxClient overrides the dual-LLM auxiliary client construction.
	// nil routes auxiliary calls through the request's own provider
	// and API key.
	AuxClient func(provider types.Provider, baseURL, apiKey string) trust.AuxClient
}

// defaultBaseURLs are the public provider endpoints.
var defaultBaseURLs = map[types.Provider]string{
	types.ProviderAnthropic: "https://api.anthropic.com",
	types.ProviderOpenAI:    "https://api.openai.com/v1",
	types.ProviderGemini:    "https://generativelanguage.googleapis.com",
	types.ProviderBedrock:   "https://bedrock-runtime.us-east-1.amazonaws.com",
	types.ProviderCohere:    "https://api.cohere.com/v2",
	types.ProviderMistral:   "https://api.mistral.ai/v1",
	types.ProviderCerebras:  "https://api.cerebras.ai/v1",
	types.ProviderOllama:    "http://localhost:11434/v1",
	types.ProviderVLLM:      "http://localhost:8000/v1",
	types.ProviderZhipuai:   "https://open.bigmodel.cn/api/paas/v4",
}
