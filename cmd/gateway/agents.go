// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"

	"github.com/archestra-ai/gateway/pkg/types"
)

// standaloneAgents is the agent store for single-tenant deployments
// without an external control plane. Every request runs as one
// permissive default agent; explicit agent ids in the path are unknown
// and rejected upstream of dispatch.
type standaloneAgents struct {
	organization string
}

func (s *standaloneAgents) GetAgent(_ context.Context, _ string) (*types.Agent, error) {
	return nil, nil
}

func (s *standaloneAgents) DefaultAgent(_ context.Context) (*types.Agent, error) {
	return &types.Agent{
		ID:             "default",
		OrganizationID: s.organization,
		Name:           "default",
	}, nil
}

func (s *standaloneAgents) GlobalToolPolicy(_ context.Context, _ string) (types.GlobalToolPolicy, error) {
	return types.PolicyPermissive, nil
}
