// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archestra-ai/gateway/pkg/pricing"
	"github.com/archestra-ai/gateway/pkg/proxy"
	"github.com/archestra-ai/gateway/pkg/storage/backend"
	"github.com/archestra-ai/gateway/pkg/types"
)

// The store must satisfy the pipeline's collaborator interfaces.
var (
	_ proxy.InteractionStore = (*Store)(nil)
	_ pricing.PriceStore     = (*Store)(nil)
	_ pricing.RuleStore      = (*Store)(nil)
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	b, err := backend.New(context.Background(), backend.Config{Driver: backend.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	require.NoError(t, b.Migrate(context.Background()))
	return New(b)
}

func TestInteractionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := &types.Interaction{
		ID:               "int-1",
		ProfileID:        "agent-1",
		ExternalAgentID:  "crew-42",
		ExecutionID:      "exec-1",
		UserID:           "user-1",
		SessionID:        "sess-1",
		SessionSource:    "archestra",
		Type:             types.InteractionTypeChat,
		Request:          json.RawMessage(`{"model":"gpt-4o"}`),
		ProcessedRequest: json.RawMessage(`{"model":"gpt-4o-mini"}`),
		Response:         json.RawMessage(`{"id":"chatcmpl-1"}`),
		Model:            "gpt-4o-mini",
		BaselineModel:    "gpt-4o",
		InputTokens:      types.IntPtr(12),
		OutputTokens:     types.IntPtr(10),
		Cost:             types.Float64Ptr(0.00013),
		BaselineCost:     types.Float64Ptr(0.00041),
		ToonTokensBefore: types.IntPtr(180),
		ToonTokensAfter:  types.IntPtr(120),
		ToonCostSavings:  types.Float64Ptr(0.00002),
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveInteraction(ctx, rec))

	got, err := store.GetInteraction(ctx, "int-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ProfileID, got.ProfileID)
	assert.Equal(t, rec.Type, got.Type)
	assert.JSONEq(t, string(rec.Request), string(got.Request))
	assert.JSONEq(t, string(rec.Response), string(got.Response))
	assert.Equal(t, 12, *got.InputTokens)
	assert.Equal(t, 10, *got.OutputTokens)
	assert.InDelta(t, 0.00013, *got.Cost, 1e-9)
	assert.Equal(t, 120, *got.ToonTokensAfter)
}

func TestInteractionNullableColumns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := &types.Interaction{
		ID:             "int-2",
		ProfileID:      "agent-1",
		Type:           types.InteractionTypeRefused,
		Request:        json.RawMessage(`{}`),
		ToonSkipReason: types.ToonSkipNoToolResults,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.SaveInteraction(ctx, rec))

	got, err := store.GetInteraction(ctx, "int-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.InputTokens)
	assert.Nil(t, got.Cost)
	assert.Nil(t, got.ToonTokensBefore)
	assert.Equal(t, types.ToonSkipNoToolResults, got.ToonSkipReason)
}

func TestLargeBlobsCompressedAtRest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Highly repetitive payload well above the threshold.
	big := `{"rows":"` + strings.Repeat("abcdefgh", 2048) + `"}`
	rec := &types.Interaction{
		ID:        "int-3",
		ProfileID: "agent-1",
		Type:      types.InteractionTypeChat,
		Request:   json.RawMessage(big),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveInteraction(ctx, rec))

	var stored []byte
	require.NoError(t, store.db.QueryRow(
		`SELECT request FROM interactions WHERE id = 'int-3'`).Scan(&stored))
	assert.Less(t, len(stored), len(big), "blob is compressed at rest")

	got, err := store.GetInteraction(ctx, "int-3")
	require.NoError(t, err)
	assert.Equal(t, big, string(got.Request), "reads are transparent")
}

func TestGetInteractionMissing(t *testing.T) {
	store := openTestStore(t)
	got, err := store.GetInteraction(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenPrices(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	missing, err := store.GetTokenPrice(ctx, "gpt-4o")
	require.NoError(t, err)
	assert.Nil(t, missing)

	price := types.TokenPrice{
		Model:            "gpt-4o",
		Provider:         types.ProviderOpenAI,
		InputPerMillion:  2.5,
		OutputPerMillion: 10,
	}
	require.NoError(t, store.InsertTokenPrice(ctx, price))

	got, err := store.GetTokenPrice(ctx, "gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, price, *got)

	assert.Error(t, store.InsertTokenPrice(ctx, price),
		"duplicate insert fails; insert-if-absent relies on it")
}

func TestOptimizationRules(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rules := []types.OptimizationRule{
		{ID: "r-low", OrganizationID: "org-1", Provider: types.ProviderOpenAI,
			TargetModel: "gpt-4o-mini", Priority: 2, Enabled: true,
			MaxTokens: types.IntPtr(1000), RequiresTools: types.BoolPtr(false)},
		{ID: "r-first", OrganizationID: "org-1", Provider: types.ProviderOpenAI,
			TargetModel: "gpt-4.1-nano", Priority: 1, Enabled: true},
		{ID: "r-disabled", OrganizationID: "org-1", Provider: types.ProviderOpenAI,
			TargetModel: "gpt-3.5-turbo", Priority: 0, Enabled: false},
		{ID: "r-other-org", OrganizationID: "org-2", Provider: types.ProviderOpenAI,
			TargetModel: "gpt-4o-mini", Priority: 0, Enabled: true},
		{ID: "r-other-provider", OrganizationID: "org-1", Provider: types.ProviderAnthropic,
			TargetModel: "claude-3-5-haiku-20241022", Priority: 0, Enabled: true},
	}
	for _, rule := range rules {
		require.NoError(t, store.InsertOptimizationRule(ctx, rule))
	}

	got, err := store.ListOptimizationRules(ctx, "org-1", types.ProviderOpenAI)
	require.NoError(t, err)
	require.Len(t, got, 2, "disabled, other-org, other-provider rules excluded")
	assert.Equal(t, "r-first", got[0].ID, "ascending priority")
	assert.Equal(t, "r-low", got[1].ID)
	require.NotNil(t, got[1].MaxTokens)
	assert.Equal(t, 1000, *got[1].MaxTokens)
	require.NotNil(t, got[1].RequiresTools)
	assert.False(t, *got[1].RequiresTools)
	assert.Nil(t, got[0].MinTokens)
}

func TestDeleteInteractionsBefore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := &types.Interaction{
		ID: "old", ProfileID: "agent-1", Type: types.InteractionTypeChat,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	fresh := &types.Interaction{
		ID: "fresh", ProfileID: "agent-1", Type: types.InteractionTypeChat,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveInteraction(ctx, old))
	require.NoError(t, store.SaveInteraction(ctx, fresh))

	deleted, err := store.DeleteInteractionsBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := store.GetInteraction(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := store.GetInteraction(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestRebind(t *testing.T) {
	sqliteStore := openTestStore(t)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?",
		sqliteStore.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	pg := &Store{backend: fakePGBackend{}}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2",
		pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
}

type fakePGBackend struct{}

func (fakePGBackend) DB() *sql.DB                   { return nil }
func (fakePGBackend) Driver() string                { return backend.DriverPostgres }
func (fakePGBackend) Migrate(context.Context) error { return nil }
func (fakePGBackend) Ping(context.Context) error    { return nil }
func (fakePGBackend) Close() error                  { return nil }
