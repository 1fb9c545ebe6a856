// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/policy"
	"github.com/archestra-ai/gateway/pkg/pricing"
	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/proxy/adapter/factory"
	"github.com/archestra-ai/gateway/pkg/tokenizer"
	"github.com/archestra-ai/gateway/pkg/toolschema"
	"github.com/archestra-ai/gateway/pkg/toon"
	"github.com/archestra-ai/gateway/pkg/trust"
	"github.com/archestra-ai/gateway/pkg/types"
)

// maxRequestBytes bounds inbound chat request bodies.
const maxRequestBytes = 32 << 20

// handleChat runs the orchestration pipeline for one chat request.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request, provider types.Provider, agentID string, info chatInfo) {
	ctx := r.Context()
	counters.requests.Add(1)

	codec, err := factory.ForProvider(provider)
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	feats := h.features()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, &StatusError{
			StatusCode: http.StatusBadRequest,
			Type:       "invalid_request_error",
			Code:       "body_read_failed",
			Message:    "The request body could not be read.",
		})
		return
	}

	req, err := codec.ParseRequest(body, adapter.RequestOptions{
		ConvertImages: feats.ImageConversion,
		Model:         info.model,
		Streaming:     info.streaming,
	})
	if err != nil {
		writeError(w, &StatusError{
			StatusCode: http.StatusBadRequest,
			Type:       "invalid_request_error",
			Code:       "invalid_body",
			Message:    "The request body is not a valid " + string(provider) + " request.",
		})
		return
	}

	identity := ResolveIdentity(ctx, r.Header, h.deps.Users)

	agent, err := h.resolveAgent(ctx, agentID)
	if err != nil {
		writeError(w, mapError(err))
		return
	}

	if identity.ExecutionID != "" && h.deps.Telemetry != nil {
		if _, seen := h.seenExecutions.LoadOrStore(identity.ExecutionID, struct{}{}); !seen {
			h.deps.Telemetry.AgentExecution(identity.ExecutionID, agent.ID)
		}
	}

	// Budget check precedes everything billable; a breach leaves no
	// interaction record because nothing was dispatched.
	if h.deps.Limits != nil {
		if err := h.deps.Limits.CheckLimits(ctx, agent); err != nil {
			counters.limitRejections.Add(1)
			writeError(w, mapError(err))
			return
		}
	}

	defs := req.ToolDefinitions()
	var defsWG sync.WaitGroup
	if h.deps.ToolDefs != nil && len(defs) > 0 {
		// The save must complete even when the handler errors out
		// early or the client cancels, so it runs on a detached
		// context and is joined on every exit path.
		saveCtx := context.WithoutCancel(ctx)
		defsWG.Add(1)
		go func() {
			defer defsWG.Done()
			for _, def := range defs {
				if err := toolschema.Validate(def); err != nil {
					h.logger.Warn("declared tool schema invalid, persisting anyway", zap.Error(err))
				}
			}
			if err := h.deps.ToolDefs.SaveToolDefinitions(saveCtx, agent.ID, defs); err != nil {
				h.logger.Warn("persisting tool definitions", zap.Error(err))
			}
		}()
	}
	defer defsWG.Wait()

	resolution, err := h.deps.Pricing.ResolveModel(ctx, agent, provider, req.Model(), req.Messages(), len(defs) > 0)
	if err != nil {
		h.logger.Warn("model resolution failed, dispatching requested model", zap.Error(err))
		resolution = pricing.Resolution{Model: req.Model(), BaselineModel: req.Model()}
	}
	if resolution.Substituted() {
		h.logger.Info("model substituted by optimization rule",
			zap.String("requested", resolution.BaselineModel),
			zap.String("dispatched", resolution.Model))
		req.SetModel(resolution.Model)
	}

	price, priceErr := h.deps.Pricing.EnsurePrice(ctx, provider, resolution.Model)
	baselinePrice, baselineErr := price, priceErr
	if resolution.Substituted() {
		baselinePrice, baselineErr = h.deps.Pricing.EnsurePrice(ctx, provider, resolution.BaselineModel)
	}

	global, err := h.deps.Agents.GlobalToolPolicy(ctx, agent.OrganizationID)
	if err != nil {
		h.logger.Warn("loading global tool policy, defaulting to permissive", zap.Error(err))
		global = types.PolicyPermissive
	}

	apiKey := clientAPIKey(r.Header, provider)
	streaming := info.streaming || req.Stream()
	lw := newLazyWriter(w)

	// From here on the request is dispatched (or aborted mid-flight);
	// either way exactly one interaction record is written.
	rec := &types.Interaction{
		ID:              uuid.NewString(),
		ProfileID:       agent.ID,
		ExternalAgentID: identity.ExternalAgentID,
		ExecutionID:     identity.ExecutionID,
		UserID:          identity.UserID,
		SessionID:       identity.SessionID,
		SessionSource:   identity.SessionSource,
		Type:            types.InteractionTypeChat,
		Request:         json.RawMessage(body),
		Model:           resolution.Model,
		BaselineModel:   resolution.BaselineModel,
		CreatedAt:       time.Now().UTC(),
	}
	recorded := false
	defer func() {
		if recorded {
			return
		}
		recorded = true
		if err := h.deps.Interactions.SaveInteraction(context.WithoutCancel(ctx), rec); err != nil {
			h.logger.Error("saving interaction record", zap.Error(err))
		}
	}()

	contextTrusted := true
	if feats.DualLLM && len(req.ToolResults()) > 0 &&
		(agent.ConsiderContextUntrusted || global == types.PolicyRestrictive) {
		trusted, ok := h.evaluateTrust(ctx, lw, codec, req, provider, apiKey, streaming)
		if !ok {
			counters.streamInterrupts.Add(1)
			return
		}
		contextTrusted = trusted
	}

	toonEnabled := feats.ToonCompression
	var stats toon.Stats
	if toonEnabled {
		stats = toon.CompressToolResults(req, tokenizer.ForProvider(provider), price.InputPerMillion)
	}
	rec.ToonSkipReason = stats.SkipReason(toonEnabled)
	if toonEnabled && stats.HadToolResults {
		rec.ToonTokensBefore = types.IntPtr(stats.TokensBefore)
		rec.ToonTokensAfter = types.IntPtr(stats.TokensAfter)
		if stats.CostSavings > 0 {
			rec.ToonCostSavings = types.Float64Ptr(stats.CostSavings)
		}
	}

	processed, err := req.ToProviderRequest()
	if err != nil {
		h.fail(lw, err)
		return
	}
	rec.ProcessedRequest = processed

	upReq, err := codec.UpstreamRequest(ctx, h.baseURL(provider), apiKey, req, processed)
	if err != nil {
		h.fail(lw, err)
		return
	}
	if beta := r.Header.Get("anthropic-beta"); beta != "" {
		upReq.Header.Set("anthropic-beta", beta)
	}

	defsWG.Wait()

	resp, err := h.client.Do(upReq)
	if err != nil {
		counters.upstreamErrors.Add(1)
		h.fail(lw, &UpstreamError{Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		counters.upstreamErrors.Add(1)
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		h.fail(lw, &UpstreamError{StatusCode: resp.StatusCode, Body: errBody})
		return
	}

	in := policy.Input{Agent: agent, Global: global, ContextTrusted: contextTrusted}
	if streaming {
		h.streamResponse(lw, codec, req, resp.Body, in, rec, price, priceErr == nil, baselinePrice, baselineErr == nil)
		return
	}
	h.bufferedResponse(lw, codec, req, resp, in, rec, price, priceErr == nil, baselinePrice, baselineErr == nil)
}

func (h *Handler) resolveAgent(ctx context.Context, agentID string) (*types.Agent, error) {
	if agentID != "" {
		agent, err := h.deps.Agents.GetAgent(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if agent == nil {
			return nil, ErrAgentNotFound
		}
		return agent, nil
	}
	return h.deps.Agents.DefaultAgent(ctx)
}

// evaluateTrust runs the dual-LLM stage. On a streaming request the
// evaluator's progress is flushed to the client as provider-formatted
// text deltas, which commits the response. ok is false when the
// evaluation aborted (client gone, context cancelled); overrides are
// discarded in that case.
func (h *Handler) evaluateTrust(ctx context.Context, lw *lazyWriter, codec adapter.Codec, req adapter.RequestAdapter, provider types.Provider, apiKey string, streaming bool) (trusted, ok bool) {
	aux := h.auxClient(provider, apiKey)
	evaluator := trust.NewEvaluator(aux)

	var cb *trust.Callbacks
	if streaming {
		// A formatter stream over an empty body: only its framing
		// helpers are used here.
		formatter := codec.NewStream(bytes.NewReader(nil), req)
		lw.Stage(formatter.SSEHeaders())
		cb = &trust.Callbacks{
			OnStart: func() error {
				_, err := lw.Write(formatter.FormatTextDelta(trust.Header))
				return err
			},
			OnProgress: func(text string) error {
				_, err := lw.Write(formatter.FormatTextDelta(text))
				return err
			},
		}
	}

	res, err := evaluator.Evaluate(ctx, req.ToolResults(), cb)
	if err != nil {
		h.logger.Warn("dual-LLM evaluation aborted", zap.Error(err))
		return false, false
	}
	if len(res.Overrides) > 0 {
		req.ApplyToolResultUpdates(res.Overrides)
	}
	return res.Trusted, true
}

func (h *Handler) auxClient(provider types.Provider, apiKey string) trust.AuxClient {
	if h.deps.AuxClient != nil {
		return h.deps.AuxClient(provider, h.baseURL(provider), apiKey)
	}
	return trust.NewProviderAux(provider, h.baseURL(provider), apiKey, "", h.client)
}

// fail routes an error through the status-aware path before commit and
// the SSE-error path after.
func (h *Handler) fail(lw *lazyWriter, err error) {
	se := mapError(err)
	if lw.Committed() {
		writeStreamError(lw, se.Message)
		return
	}
	writeError(lw.w, se)
}

// streamResponse is the streaming dispatch tail: forward text as it
// arrives, buffer tool calls, run policy once the upstream is
// exhausted, then replay or refuse.
func (h *Handler) streamResponse(lw *lazyWriter, codec adapter.Codec, req adapter.RequestAdapter, upstream io.Reader, in policy.Input, rec *types.Interaction, price types.TokenPrice, hasPrice bool, baselinePrice types.TokenPrice, hasBaselinePrice bool) {
	stream := codec.NewStream(upstream, req)
	lw.Stage(stream.SSEHeaders())

	interrupted := false
	for {
		res, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			counters.upstreamErrors.Add(1)
			h.logger.Warn("upstream stream failed mid-flight", zap.Error(err))
			h.fail(lw, &UpstreamError{Err: err})
			interrupted = true
			break
		}
		if len(res.SSEData) == 0 {
			continue
		}
		if _, err := lw.Write(res.SSEData); err != nil {
			counters.streamInterrupts.Add(1)
			h.logger.Debug("client disconnected mid-stream", zap.Error(err))
			interrupted = true
			break
		}
	}

	acc := stream.Accumulator()
	finishRecord(rec, acc, price, hasPrice, baselinePrice, hasBaselinePrice)
	if interrupted {
		return
	}

	in.Calls = acc.ToolCalls
	if refusal := policy.Evaluate(in); refusal != nil {
		counters.refusals.Add(1)
		counters.blockedTools.Add(1)
		h.logger.Info("tool invocation refused",
			zap.String("tool", refusal.Tool),
			zap.String("reason", refusal.Reason))
		rec.Type = types.InteractionTypeRefused
		rec.Response = refusalRecord(refusal, acc)
		if _, err := lw.Write(stream.FormatCompleteText(refusal.Message)); err != nil {
			counters.streamInterrupts.Add(1)
			return
		}
		_, _ = lw.Write(stream.FormatEnd())
		return
	}

	for _, ev := range stream.RawToolCallEvents() {
		if _, err := lw.Write(ev); err != nil {
			counters.streamInterrupts.Add(1)
			return
		}
	}
	_, _ = lw.Write(stream.FormatEnd())
	rec.Response = accumulatorRecord(acc)
}

// bufferedResponse is the non-streaming dispatch tail.
func (h *Handler) bufferedResponse(lw *lazyWriter, codec adapter.Codec, req adapter.RequestAdapter, resp *http.Response, in policy.Input, rec *types.Interaction, price types.TokenPrice, hasPrice bool, baselinePrice types.TokenPrice, hasBaselinePrice bool) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		counters.upstreamErrors.Add(1)
		h.fail(lw, &UpstreamError{Err: err})
		return
	}

	parsed, err := codec.ParseResponse(body, req)
	if err != nil {
		// A response the adapter cannot interpret cannot be policy
		// checked, so it is not forwarded.
		counters.upstreamErrors.Add(1)
		h.fail(lw, &UpstreamError{StatusCode: http.StatusBadGateway, Err: err})
		return
	}

	usage := parsed.Usage()
	if usage != nil {
		rec.InputTokens = types.IntPtr(usage.InputTokens)
		rec.OutputTokens = types.IntPtr(usage.OutputTokens)
		if hasPrice {
			rec.Cost = pricing.Cost(price, usage)
		}
		if hasBaselinePrice {
			rec.BaselineCost = pricing.Cost(baselinePrice, usage)
		}
	}

	out := body
	// Bedrock re-renders the body with client-visible tool names.
	if decoder, ok := parsed.(interface{ DecodedBody() ([]byte, error) }); ok {
		if decoded, err := decoder.DecodedBody(); err == nil {
			out = decoded
		}
	}
	rec.Response = out

	in.Calls = parsed.ToolCalls()
	if refusal := policy.Evaluate(in); refusal != nil {
		counters.refusals.Add(1)
		counters.blockedTools.Add(1)
		h.logger.Info("tool invocation refused",
			zap.String("tool", refusal.Tool),
			zap.String("reason", refusal.Reason))
		rec.Type = types.InteractionTypeRefused
		refused, err := parsed.ToRefusalResponse(refusal.Message)
		if err != nil {
			h.fail(lw, err)
			return
		}
		out = refused
		rec.Response = refused
	}

	headers := http.Header{}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	headers.Set("Content-Type", ct)
	lw.Stage(headers)
	if _, err := lw.Write(out); err != nil {
		counters.streamInterrupts.Add(1)
	}
}

// finishRecord folds the stream accumulator into the record. The
// record's model stays the dispatched model; the provider-reported one
// lives in the response summary.
func finishRecord(rec *types.Interaction, acc *adapter.Accumulator, price types.TokenPrice, hasPrice bool, baselinePrice types.TokenPrice, hasBaselinePrice bool) {
	if acc.Usage == nil {
		return
	}
	rec.InputTokens = types.IntPtr(acc.Usage.InputTokens)
	rec.OutputTokens = types.IntPtr(acc.Usage.OutputTokens)
	if hasPrice {
		rec.Cost = pricing.Cost(price, acc.Usage)
	}
	if hasBaselinePrice {
		rec.BaselineCost = pricing.Cost(baselinePrice, acc.Usage)
	}
}

// accumulatorRecord summarizes a forwarded stream for the record.
func accumulatorRecord(acc *adapter.Accumulator) json.RawMessage {
	summary := map[string]interface{}{
		"id":          acc.ResponseID,
		"model":       acc.Model,
		"content":     acc.Text,
		"stop_reason": acc.StopReason,
	}
	if len(acc.ToolCalls) > 0 {
		calls := make([]map[string]interface{}, 0, len(acc.ToolCalls))
		for _, call := range acc.ToolCalls {
			calls = append(calls, map[string]interface{}{
				"id":        call.ID,
				"name":      call.Name,
				"arguments": call.Arguments,
			})
		}
		summary["tool_calls"] = calls
	}
	if acc.Usage != nil {
		summary["usage"] = map[string]interface{}{
			"input_tokens":  acc.Usage.InputTokens,
			"output_tokens": acc.Usage.OutputTokens,
		}
	}
	data, _ := json.Marshal(summary)
	return data
}

// refusalRecord is the persisted response for a refused interaction.
func refusalRecord(refusal *policy.Refusal, acc *adapter.Accumulator) json.RawMessage {
	data, _ := json.Marshal(map[string]interface{}{
		"refusal": map[string]interface{}{
			"reason":  refusal.Reason,
			"tool":    refusal.Tool,
			"message": refusal.Message,
		},
		"id":    acc.ResponseID,
		"model": acc.Model,
	})
	return data
}
