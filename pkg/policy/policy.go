// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package policy decides whether a response's proposed tool calls may
// reach the client. A refusal applies to the entire response: the
// assistant text is replaced and all tool blocks are suppressed.
package policy

import (
	"fmt"

	"github.com/archestra-ai/gateway/pkg/types"
)

// Machine-readable refusal reasons.
const (
	ReasonToolNotEnabled     = "tool_not_enabled"
	ReasonUntrustedContext   = "untrusted_context"
	ReasonDeniedByPolicy     = "denied_by_policy"
	ReasonRestrictiveDefault = "restrictive_default"
)

// Refusal carries the machine reason and the human-readable text that
// replaces the assistant response.
type Refusal struct {
	Reason  string
	Message string
	// Tool is the call that triggered the refusal.
	Tool string
}

// Input is everything the decision needs.
type Input struct {
	Calls          []types.ToolCall
	Agent          *types.Agent
	Global         types.GlobalToolPolicy
	ContextTrusted bool
}

// Evaluate applies the decision order to each proposed call; the first
// refusing rule wins. nil means every call is approved.
//
// Order per call:
//  1. not in the enabled-tools whitelist → refuse
//  2. restrictive global policy with untrusted context → refuse
//  3. per-agent deny rule → refuse
//  4. per-agent allow rule → allow
//  5. default by global policy
func Evaluate(in Input) *Refusal {
	for _, call := range in.Calls {
		if refusal := evaluateCall(call, in); refusal != nil {
			return refusal
		}
	}
	return nil
}

func evaluateCall(call types.ToolCall, in Input) *Refusal {
	if !enabled(call.Name, in.Agent) {
		return &Refusal{
			Reason:  ReasonToolNotEnabled,
			Tool:    call.Name,
			Message: fmt.Sprintf("The tool %q is not enabled for this agent. The request was not executed.", call.Name),
		}
	}

	if in.Global == types.PolicyRestrictive && !in.ContextTrusted {
		return &Refusal{
			Reason:  ReasonUntrustedContext,
			Tool:    call.Name,
			Message: "Tool execution was blocked: the conversation contains tool output that could not be verified as trustworthy.",
		}
	}

	allowed, matched := agentRule(call.Name, in.Agent)
	if matched {
		if allowed {
			return nil
		}
		return &Refusal{
			Reason:  ReasonDeniedByPolicy,
			Tool:    call.Name,
			Message: fmt.Sprintf("The tool %q is denied by this agent's policy. The request was not executed.", call.Name),
		}
	}

	if in.Global == types.PolicyRestrictive {
		return &Refusal{
			Reason:  ReasonRestrictiveDefault,
			Tool:    call.Name,
			Message: fmt.Sprintf("The tool %q is not explicitly allowed under the organization's restrictive policy.", call.Name),
		}
	}
	return nil
}

// enabled checks the whitelist. An agent with no whitelist enables
// nothing; tool calls against such agents always refuse.
func enabled(name string, agent *types.Agent) bool {
	if agent == nil {
		return false
	}
	for _, t := range agent.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}

// agentRule returns (allow, matched) for the first per-agent rule
// whose tool name matches. Deny rules take precedence over allow
// rules regardless of declaration order.
func agentRule(name string, agent *types.Agent) (bool, bool) {
	if agent == nil {
		return false, false
	}
	matched := false
	allowed := false
	for _, rule := range agent.ToolPolicies {
		if rule.ToolName != name {
			continue
		}
		if !rule.Allow {
			return false, true
		}
		matched = true
		allowed = true
	}
	return allowed, matched
}
