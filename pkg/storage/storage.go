// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package storage persists the three core tables: interaction
// records, token prices, and optimization rules. It satisfies the
// proxy's InteractionStore and the pricing engine's PriceStore and
// RuleStore.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/archestra-ai/gateway/pkg/storage/backend"
	"github.com/archestra-ai/gateway/pkg/types"
)

// Store runs the gateway's SQL against an opened backend.
type Store struct {
	backend backend.Backend
	db      *sql.DB
}

// New wraps an opened, migrated backend.
func New(b backend.Backend) *Store {
	return &Store{backend: b, db: b.DB()}
}

// rebind converts ?-placeholders to the $n form PostgreSQL expects.
func (s *Store) rebind(query string) string {
	if s.backend.Driver() != backend.DriverPostgres {
		return query
	}
	var out strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			out.WriteString("$" + strconv.Itoa(n))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// SaveInteraction inserts one interaction record. Records are
// immutable; there is no update path.
func (s *Store) SaveInteraction(ctx context.Context, rec *types.Interaction) error {
	query := s.rebind(`INSERT INTO interactions (
		id, profile_id, external_agent_id, execution_id, user_id,
		session_id, session_source, type, request, processed_request,
		response, model, baseline_model, input_tokens, output_tokens,
		cost, baseline_cost, toon_tokens_before, toon_tokens_after,
		toon_cost_savings, toon_skip_reason, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.ProfileID, rec.ExternalAgentID, rec.ExecutionID, rec.UserID,
		rec.SessionID, rec.SessionSource, rec.Type,
		sealBlob(rec.Request), sealBlob(rec.ProcessedRequest), sealBlob(rec.Response),
		rec.Model, rec.BaselineModel, rec.InputTokens, rec.OutputTokens,
		rec.Cost, rec.BaselineCost, rec.ToonTokensBefore, rec.ToonTokensAfter,
		rec.ToonCostSavings, rec.ToonSkipReason, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting interaction %s: %w", rec.ID, err)
	}
	return nil
}

// GetInteraction loads one record by id, nil when absent.
func (s *Store) GetInteraction(ctx context.Context, id string) (*types.Interaction, error) {
	query := s.rebind(`SELECT
		id, profile_id, external_agent_id, execution_id, user_id,
		session_id, session_source, type, request, processed_request,
		response, model, baseline_model, input_tokens, output_tokens,
		cost, baseline_cost, toon_tokens_before, toon_tokens_after,
		toon_cost_savings, toon_skip_reason, created_at
	FROM interactions WHERE id = ?`)

	rec := &types.Interaction{}
	var (
		request, processed, response []byte
		inTokens, outTokens          sql.NullInt64
		cost, baselineCost           sql.NullFloat64
		toonBefore, toonAfter        sql.NullInt64
		toonSavings                  sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.ProfileID, &rec.ExternalAgentID, &rec.ExecutionID, &rec.UserID,
		&rec.SessionID, &rec.SessionSource, &rec.Type, &request, &processed,
		&response, &rec.Model, &rec.BaselineModel, &inTokens, &outTokens,
		&cost, &baselineCost, &toonBefore, &toonAfter,
		&toonSavings, &rec.ToonSkipReason, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading interaction %s: %w", id, err)
	}

	if rec.Request, err = openBlob(request); err != nil {
		return nil, err
	}
	if rec.ProcessedRequest, err = openBlob(processed); err != nil {
		return nil, err
	}
	if rec.Response, err = openBlob(response); err != nil {
		return nil, err
	}

	if inTokens.Valid {
		rec.InputTokens = types.IntPtr(int(inTokens.Int64))
	}
	if outTokens.Valid {
		rec.OutputTokens = types.IntPtr(int(outTokens.Int64))
	}
	if cost.Valid {
		rec.Cost = types.Float64Ptr(cost.Float64)
	}
	if baselineCost.Valid {
		rec.BaselineCost = types.Float64Ptr(baselineCost.Float64)
	}
	if toonBefore.Valid {
		rec.ToonTokensBefore = types.IntPtr(int(toonBefore.Int64))
	}
	if toonAfter.Valid {
		rec.ToonTokensAfter = types.IntPtr(int(toonAfter.Int64))
	}
	if toonSavings.Valid {
		rec.ToonCostSavings = types.Float64Ptr(toonSavings.Float64)
	}
	return rec, nil
}

// DeleteInteractionsBefore removes records created before cutoff and
// reports how many were deleted. The retention cleaner calls this.
func (s *Store) DeleteInteractionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM interactions WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired interactions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted interactions: %w", err)
	}
	return deleted, nil
}

// GetTokenPrice returns the price row for model, nil when absent.
func (s *Store) GetTokenPrice(ctx context.Context, model string) (*types.TokenPrice, error) {
	query := s.rebind(`SELECT model, provider, input_per_million, output_per_million
		FROM token_prices WHERE model = ?`)

	price := &types.TokenPrice{}
	err := s.db.QueryRowContext(ctx, query, model).Scan(
		&price.Model, &price.Provider, &price.InputPerMillion, &price.OutputPerMillion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading token price for %q: %w", model, err)
	}
	return price, nil
}

// InsertTokenPrice adds a price row. Fails when the model already has
// one; the pricing engine's insert-if-absent discipline relies on
// that.
func (s *Store) InsertTokenPrice(ctx context.Context, price types.TokenPrice) error {
	query := s.rebind(`INSERT INTO token_prices
		(model, provider, input_per_million, output_per_million)
		VALUES (?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		price.Model, price.Provider, price.InputPerMillion, price.OutputPerMillion)
	if err != nil {
		return fmt.Errorf("inserting token price for %q: %w", price.Model, err)
	}
	return nil
}

// ListOptimizationRules returns the enabled rules for an organization
// and provider, ordered by ascending priority.
func (s *Store) ListOptimizationRules(ctx context.Context, organizationID string, provider types.Provider) ([]types.OptimizationRule, error) {
	query := s.rebind(`SELECT
		id, organization_id, provider, min_tokens, max_tokens,
		requires_tools, forbids_tools, target_model, priority, enabled
	FROM optimization_rules
	WHERE organization_id = ? AND provider = ? AND enabled = ?
	ORDER BY priority ASC`)

	rows, err := s.db.QueryContext(ctx, query, organizationID, provider, true)
	if err != nil {
		return nil, fmt.Errorf("listing optimization rules: %w", err)
	}
	defer rows.Close()

	var out []types.OptimizationRule
	for rows.Next() {
		var (
			rule                 types.OptimizationRule
			minTok, maxTok       sql.NullInt64
			reqTools, forbsTools sql.NullBool
		)
		if err := rows.Scan(
			&rule.ID, &rule.OrganizationID, &rule.Provider, &minTok, &maxTok,
			&reqTools, &forbsTools, &rule.TargetModel, &rule.Priority, &rule.Enabled,
		); err != nil {
			return nil, fmt.Errorf("scanning optimization rule: %w", err)
		}
		if minTok.Valid {
			rule.MinTokens = types.IntPtr(int(minTok.Int64))
		}
		if maxTok.Valid {
			rule.MaxTokens = types.IntPtr(int(maxTok.Int64))
		}
		if reqTools.Valid {
			rule.RequiresTools = types.BoolPtr(reqTools.Bool)
		}
		if forbsTools.Valid {
			rule.ForbidsTools = types.BoolPtr(forbsTools.Bool)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// InsertOptimizationRule adds a rule row.
func (s *Store) InsertOptimizationRule(ctx context.Context, rule types.OptimizationRule) error {
	query := s.rebind(`INSERT INTO optimization_rules (
		id, organization_id, provider, min_tokens, max_tokens,
		requires_tools, forbids_tools, target_model, priority, enabled
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		rule.ID, rule.OrganizationID, rule.Provider, rule.MinTokens, rule.MaxTokens,
		rule.RequiresTools, rule.ForbidsTools, rule.TargetModel, rule.Priority, rule.Enabled)
	if err != nil {
		return fmt.Errorf("inserting optimization rule %s: %w", rule.ID, err)
	}
	return nil
}
