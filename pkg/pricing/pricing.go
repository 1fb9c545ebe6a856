// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package pricing implements the cost engine: token-price lookup with
// insert-on-first-miss semantics, request cost calculation, and
// optimization-rule resolution (model substitution).
package pricing

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/internal/log"
	"github.com/archestra-ai/gateway/pkg/tokenizer"
	"github.com/archestra-ai/gateway/pkg/types"
)

// PriceStore persists token-price rows. GetTokenPrice returns nil (no
// error) when the model has no row.
type PriceStore interface {
	GetTokenPrice(ctx context.Context, model string) (*types.TokenPrice, error)
	InsertTokenPrice(ctx context.Context, price types.TokenPrice) error
}

// RuleStore lists enabled optimization rules for an organization and
// provider, ordered by ascending priority.
type RuleStore interface {
	ListOptimizationRules(ctx context.Context, organizationID string, provider types.Provider) ([]types.OptimizationRule, error)
}

// TeamResolver maps an agent's team memberships to its organization.
// Returns "" when no team resolves.
type TeamResolver interface {
	OrganizationForTeams(ctx context.Context, teamIDs []string) (string, error)
}

// Engine is the cost engine. The in-process price cache is the only
// cross-request shared state; it uses an insert-if-absent discipline.
type Engine struct {
	prices     PriceStore
	rules      RuleStore
	teams      TeamResolver
	defaultOrg string

	counterFor func(types.Provider) tokenizer.Counter

	mu    sync.RWMutex
	cache map[string]types.TokenPrice
}

// New creates an Engine. teams may be nil when team→organization
// resolution is unavailable; defaultOrg is the fallback organization
// for agents without teams.
func New(prices PriceStore, rules RuleStore, teams TeamResolver, defaultOrg string) *Engine {
	return &Engine{
		prices:     prices,
		rules:      rules,
		teams:      teams,
		defaultOrg: defaultOrg,
		counterFor: tokenizer.ForProvider,
		cache:      make(map[string]types.TokenPrice),
	}
}

// SetCounterProvider overrides the tokenizer lookup. Tests use this to
// make token counts deterministic.
func (e *Engine) SetCounterProvider(f func(types.Provider) tokenizer.Counter) {
	e.counterFor = f
}

// EnsurePrice returns the price row for model, inserting the
// provider-default row on first miss so later lookups succeed.
func (e *Engine) EnsurePrice(ctx context.Context, provider types.Provider, model string) (types.TokenPrice, error) {
	e.mu.RLock()
	if price, ok := e.cache[model]; ok {
		e.mu.RUnlock()
		return price, nil
	}
	e.mu.RUnlock()

	price, err := e.prices.GetTokenPrice(ctx, model)
	if err != nil {
		return types.TokenPrice{}, fmt.Errorf("get token price for %q: %w", model, err)
	}
	if price == nil {
		fresh := defaultPrice(provider, model)
		if err := e.prices.InsertTokenPrice(ctx, fresh); err != nil {
			// A concurrent request may have inserted first; re-read
			// before giving up.
			if reread, rerr := e.prices.GetTokenPrice(ctx, model); rerr == nil && reread != nil {
				price = reread
			} else {
				return types.TokenPrice{}, fmt.Errorf("insert token price for %q: %w", model, err)
			}
		} else {
			log.Debug("inserted default token price",
				zap.String("model", model), zap.String("provider", string(provider)))
			price = &fresh
		}
	}

	e.mu.Lock()
	e.cache[model] = *price
	e.mu.Unlock()
	return *price, nil
}

// Cost prices usage against a price row:
// (input/1e6)·inputPerMillion + (output/1e6)·outputPerMillion.
// Returns nil when usage is unknown; cost is undefined, not zero.
func Cost(price types.TokenPrice, usage *types.Usage) *float64 {
	if usage == nil {
		return nil
	}
	cost := float64(usage.InputTokens)/1_000_000*price.InputPerMillion +
		float64(usage.OutputTokens)/1_000_000*price.OutputPerMillion
	return &cost
}

// Resolution reports the outcome of optimization-rule matching.
type Resolution struct {
	// Model is the model to dispatch with.
	Model string
	// BaselineModel is what the caller asked for.
	BaselineModel string
	// Rule is the matched rule, nil when no rule applied.
	Rule *types.OptimizationRule
	// TokenCount is the request size the predicate was evaluated with.
	TokenCount int
}

// Substituted reports whether the dispatch model differs from the
// baseline.
func (r Resolution) Substituted() bool { return r.Model != r.BaselineModel }

// ResolveModel applies the first matching enabled optimization rule
// for the agent's organization and provider. The organization resolves
// through the agent's teams, falling back to the engine's configured
// default organization for team-less agents.
func (e *Engine) ResolveModel(ctx context.Context, agent *types.Agent, provider types.Provider, requestedModel string, messages []types.Message, hasTools bool) (Resolution, error) {
	res := Resolution{Model: requestedModel, BaselineModel: requestedModel}

	org := e.defaultOrg
	if e.teams != nil && len(agent.TeamIDs) > 0 {
		resolved, err := e.teams.OrganizationForTeams(ctx, agent.TeamIDs)
		if err != nil {
			return res, fmt.Errorf("resolve organization for agent %s: %w", agent.ID, err)
		}
		if resolved != "" {
			org = resolved
		}
	}
	if org == "" || e.rules == nil {
		return res, nil
	}

	rules, err := e.rules.ListOptimizationRules(ctx, org, provider)
	if err != nil {
		return res, fmt.Errorf("list optimization rules: %w", err)
	}
	if len(rules) == 0 {
		return res, nil
	}

	res.TokenCount = e.counterFor(provider).CountMessages(messages)
	for i := range rules {
		rule := rules[i]
		if !rule.Enabled {
			continue
		}
		if rule.Matches(res.TokenCount, hasTools) {
			res.Model = rule.TargetModel
			res.Rule = &rule
			break
		}
	}
	return res, nil
}
