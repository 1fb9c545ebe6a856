// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package trust

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/archestra-ai/gateway/pkg/types"
)

// defaultAuxModels are the small, cheap models used for
// classification when the deployment does not pin one.
var defaultAuxModels = map[types.Provider]string{
	types.ProviderAnthropic: "claude-3-5-haiku-20241022",
	types.ProviderOpenAI:    "gpt-4o-mini",
	types.ProviderGemini:    "gemini-2.0-flash",
	types.ProviderBedrock:   "us.amazon.nova-lite-v1:0",
	types.ProviderCohere:    "command-r",
	types.ProviderMistral:   "mistral-small-latest",
	types.ProviderCerebras:  "llama3.1-8b",
	types.ProviderZhipuai:   "glm-4-flash",
	types.ProviderOllama:    "llama3.2",
	types.ProviderVLLM:      "",
}

// DefaultAuxModel returns the provider's default classification model.
func DefaultAuxModel(provider types.Provider) string {
	return defaultAuxModels[provider]
}

const auxMaxTokens = 1024

// ProviderAux satisfies AuxClient with a plain non-streaming
// completion against the same provider (and credentials) as the
// primary request, so the evaluator needs no extra configuration.
type ProviderAux struct {
	provider   types.Provider
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewProviderAux builds an aux client. model may be empty to use the
// provider default; httpClient may be nil.
func NewProviderAux(provider types.Provider, baseURL, apiKey, model string, httpClient *http.Client) *ProviderAux {
	if model == "" {
		model = DefaultAuxModel(provider)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ProviderAux{
		provider:   provider,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

func (p *ProviderAux) Complete(ctx context.Context, system, user string) (string, error) {
	switch p.provider {
	case types.ProviderAnthropic:
		return p.completeAnthropic(ctx, system, user)
	case types.ProviderGemini:
		return p.completeGemini(ctx, system, user)
	case types.ProviderBedrock:
		return p.completeBedrock(ctx, system, user)
	default:
		return p.completeOpenAI(ctx, system, user)
	}
}

func (p *ProviderAux) completeAnthropic(ctx context.Context, system, user string) (string, error) {
	body := map[string]interface{}{
		"model":      p.model,
		"max_tokens": auxMaxTokens,
		"system":     system,
		"messages": []map[string]string{
			{"role": "user", "content": user},
		},
	}
	raw, err := p.post(ctx, p.baseURL+"/v1/messages", body, func(req *http.Request) {
		req.Header.Set("anthropic-version", "2023-06-01")
		if token, ok := strings.CutPrefix(p.apiKey, "Bearer:"); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		} else {
			req.Header.Set("x-api-key", p.apiKey)
		}
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decoding anthropic response: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic response has no text block")
}

func (p *ProviderAux) completeOpenAI(ctx context.Context, system, user string) (string, error) {
	body := map[string]interface{}{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	raw, err := p.post(ctx, p.baseURL+"/chat/completions", body, func(req *http.Request) {
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decoding chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *ProviderAux) completeGemini(ctx context.Context, system, user string) (string, error) {
	body := map[string]interface{}{
		"system_instruction": map[string]interface{}{
			"parts": []map[string]string{{"text": system}},
		},
		"contents": []map[string]interface{}{
			{"role": "user", "parts": []map[string]string{{"text": user}}},
		},
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, p.model)
	raw, err := p.post(ctx, url, body, func(req *http.Request) {
		req.Header.Set("x-goog-api-key", p.apiKey)
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decoding gemini response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response has no candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (p *ProviderAux) completeBedrock(ctx context.Context, system, user string) (string, error) {
	body := map[string]interface{}{
		"system": []map[string]string{{"text": system}},
		"messages": []map[string]interface{}{
			{"role": "user", "content": []map[string]string{{"text": user}}},
		},
		"inferenceConfig": map[string]int{"maxTokens": auxMaxTokens},
	}
	url := fmt.Sprintf("%s/model/%s/converse", p.baseURL, p.model)
	raw, err := p.post(ctx, url, body, func(req *http.Request) {
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Output struct {
			Message struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decoding converse response: %w", err)
	}
	if len(resp.Output.Message.Content) == 0 {
		return "", fmt.Errorf("converse response has no content")
	}
	return resp.Output.Message.Content[0].Text, nil
}

func (p *ProviderAux) post(ctx context.Context, url string, body interface{}, decorate func(*http.Request)) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding aux request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building aux request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	decorate(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aux request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading aux response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aux upstream returned %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
