// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archestra-ai/gateway/pkg/types"
)

func agent(enabled []string, rules ...types.ToolPolicyRule) *types.Agent {
	return &types.Agent{ID: "a1", EnabledTools: enabled, ToolPolicies: rules}
}

func calls(names ...string) []types.ToolCall {
	out := make([]types.ToolCall, len(names))
	for i, n := range names {
		out[i] = types.ToolCall{ID: "c" + n, Name: n}
	}
	return out
}

func TestEvaluate_NoCalls(t *testing.T) {
	assert.Nil(t, Evaluate(Input{Agent: agent(nil), Global: types.PolicyRestrictive}))
}

func TestEvaluate_WhitelistFirst(t *testing.T) {
	in := Input{
		Calls:          calls("delete_repo"),
		Agent:          agent([]string{"list_files"}),
		Global:         types.PolicyPermissive,
		ContextTrusted: true,
	}
	refusal := Evaluate(in)
	require.NotNil(t, refusal)
	assert.Equal(t, ReasonToolNotEnabled, refusal.Reason)
	assert.Equal(t, "delete_repo", refusal.Tool)
}

func TestEvaluate_RestrictiveUntrustedContext(t *testing.T) {
	in := Input{
		Calls:          calls("list_files"),
		Agent:          agent([]string{"list_files"}, types.ToolPolicyRule{ToolName: "list_files", Allow: true}),
		Global:         types.PolicyRestrictive,
		ContextTrusted: false,
	}
	refusal := Evaluate(in)
	require.NotNil(t, refusal)
	assert.Equal(t, ReasonUntrustedContext, refusal.Reason, "untrusted context refuses even explicitly allowed tools")
}

func TestEvaluate_AgentDenyRule(t *testing.T) {
	in := Input{
		Calls:          calls("send_email"),
		Agent:          agent([]string{"send_email"}, types.ToolPolicyRule{ToolName: "send_email", Allow: false}),
		Global:         types.PolicyPermissive,
		ContextTrusted: true,
	}
	refusal := Evaluate(in)
	require.NotNil(t, refusal)
	assert.Equal(t, ReasonDeniedByPolicy, refusal.Reason)
}

func TestEvaluate_DenyBeatsAllow(t *testing.T) {
	in := Input{
		Calls: calls("send_email"),
		Agent: agent([]string{"send_email"},
			types.ToolPolicyRule{ToolName: "send_email", Allow: true},
			types.ToolPolicyRule{ToolName: "send_email", Allow: false},
		),
		Global:         types.PolicyPermissive,
		ContextTrusted: true,
	}
	refusal := Evaluate(in)
	require.NotNil(t, refusal)
	assert.Equal(t, ReasonDeniedByPolicy, refusal.Reason)
}

func TestEvaluate_AllowRuleUnderRestrictive(t *testing.T) {
	in := Input{
		Calls:          calls("list_files"),
		Agent:          agent([]string{"list_files"}, types.ToolPolicyRule{ToolName: "list_files", Allow: true}),
		Global:         types.PolicyRestrictive,
		ContextTrusted: true,
	}
	assert.Nil(t, Evaluate(in), "explicit allow passes under restrictive when context is trusted")
}

func TestEvaluate_Defaults(t *testing.T) {
	base := Input{
		Calls:          calls("list_files"),
		Agent:          agent([]string{"list_files"}),
		ContextTrusted: true,
	}

	base.Global = types.PolicyPermissive
	assert.Nil(t, Evaluate(base), "permissive default allows")

	base.Global = types.PolicyRestrictive
	refusal := Evaluate(base)
	require.NotNil(t, refusal)
	assert.Equal(t, ReasonRestrictiveDefault, refusal.Reason, "restrictive default refuses")
}

func TestEvaluate_FirstRefusingCallWins(t *testing.T) {
	in := Input{
		Calls:          calls("list_files", "rm_rf"),
		Agent:          agent([]string{"list_files"}),
		Global:         types.PolicyPermissive,
		ContextTrusted: true,
	}
	refusal := Evaluate(in)
	require.NotNil(t, refusal)
	assert.Equal(t, "rm_rf", refusal.Tool)
}

func TestEvaluate_NilAgentRefuses(t *testing.T) {
	in := Input{Calls: calls("anything"), Global: types.PolicyPermissive, ContextTrusted: true}
	refusal := Evaluate(in)
	require.NotNil(t, refusal)
	assert.Equal(t, ReasonToolNotEnabled, refusal.Reason)
}
