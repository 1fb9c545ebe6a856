// Copyright 2026 Archestra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package bedrock adapts the Bedrock runtime Converse API. The model
// id and streaming mode live in the URL; streaming responses use the
// binary AWS event-stream framing from pkg/eventstream. Nova models
// get their tool names hyphen-encoded on the wire and decoded back in
// every outbound event.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/archestra-ai/gateway/pkg/proxy/adapter"
	"github.com/archestra-ai/gateway/pkg/types"
)

const signingService = "bedrock"

// Codec implements adapter.Codec for Bedrock.
type Codec struct{}

func New() *Codec { return &Codec{} }

func (c *Codec) Provider() types.Provider { return types.ProviderBedrock }

func (c *Codec) ParseRequest(body []byte, opts adapter.RequestOptions) (adapter.RequestAdapter, error) {
	raw, err := adapter.DecodeJSONMap(body)
	if err != nil {
		return nil, err
	}
	req := &Request{
		raw:       raw,
		model:     opts.Model,
		streaming: opts.Streaming,
		overrides: map[string]string{},
		opts:      opts,
	}
	req.buildNameMap()
	return req, nil
}

func (c *Codec) ParseResponse(body []byte, req adapter.RequestAdapter) (adapter.ResponseAdapter, error) {
	return parseResponse(body, nameMapOf(req))
}

func (c *Codec) NewStream(upstream io.Reader, req adapter.RequestAdapter) adapter.StreamAdapter {
	return newStream(upstream, nameMapOf(req))
}

// nameMapOf extracts the per-request tool-name map when the request
// came through this codec.
func nameMapOf(req adapter.RequestAdapter) map[string]string {
	if r, ok := req.(*Request); ok {
		return r.nameMap
	}
	return nil
}

// UpstreamRequest dispatches with the client's bearer token when one
// was supplied. A token of the form accessKey:secretKey[:sessionToken]
// is treated as a static AWS key pair and used for SigV4 instead; no
// token at all falls back to SigV4 with the default credential chain.
func (c *Codec) UpstreamRequest(ctx context.Context, baseURL, apiKey string, req adapter.RequestAdapter, body []byte) (*http.Request, error) {
	action := "converse"
	if req != nil && req.Stream() {
		action = "converse-stream"
	}
	endpoint := fmt.Sprintf("%s/model/%s/%s", strings.TrimRight(baseURL, "/"), url.PathEscape(req.Model()), action)

	out, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("building bedrock request: %w", err)
	}
	out.Header.Set("Content-Type", "application/json")

	if pair := staticKeyPair(apiKey); pair != nil {
		if err := signV4(ctx, out, body, pair); err != nil {
			return nil, err
		}
		return out, nil
	}
	if apiKey != "" {
		out.Header.Set("Authorization", "Bearer "+apiKey)
		return out, nil
	}
	if err := signV4(ctx, out, body, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// staticKeyPair parses an accessKey:secretKey[:sessionToken] token into
// a static credentials provider, nil when the token is not one.
func staticKeyPair(apiKey string) aws.CredentialsProvider {
	parts := strings.Split(apiKey, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil
	}
	session := ""
	if len(parts) == 3 {
		session = parts[2]
	}
	return credentials.NewStaticCredentialsProvider(parts[0], parts[1], session)
}

// signV4 signs the request; a nil provider uses the default chain.
func signV4(ctx context.Context, req *http.Request, body []byte, provider aws.CredentialsProvider) error {
	var opts []func(*awsconfig.LoadOptions) error
	if provider != nil {
		opts = append(opts, awsconfig.WithCredentialsProvider(provider))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("loading aws config: %w", err)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("resolving aws credentials: %w", err)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	hash := sha256.Sum256(body)
	signer := v4.NewSigner()
	if err := signer.SignHTTP(ctx, creds, req, hex.EncodeToString(hash[:]), signingService, region, time.Now()); err != nil {
		return fmt.Errorf("signing bedrock request: %w", err)
	}
	return nil
}
