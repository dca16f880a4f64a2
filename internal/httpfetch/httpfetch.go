// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpfetch performs the real network request behind the
// HTTP syscall once the permission model has already granted access
// to the target domain. It owns no quota or allow-list logic of its
// own — that lives in internal/permission per the dispatcher's gating
// step — this package only knows how to make the request.
package httpfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher wraps an *http.Client with the bounded body size and default
// timeout every outbound agent request is held to.
type Fetcher struct {
	client         *http.Client
	maxResponseLen int64
}

// Config tunes the underlying client.
type Config struct {
	Timeout        time.Duration
	MaxResponseLen int64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxResponseLen <= 0 {
		c.MaxResponseLen = 1 << 20 // matches the wire protocol's max payload
	}
	return c
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		client:         &http.Client{Timeout: cfg.Timeout},
		maxResponseLen: cfg.MaxResponseLen,
	}
}

// Fetch performs method against url with an optional JSON body and
// headers, and returns the response as {"status":n,"headers":{...},
// "body":...}. The body is parsed as JSON if it looks like JSON,
// otherwise returned as a string.
func (f *Fetcher) Fetch(ctx context.Context, method, url string, body json.RawMessage, headers map[string]string) (json.RawMessage, error) {
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: building request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxResponseLen))
	if err != nil {
		return nil, fmt.Errorf("httpfetch: reading response: %w", err)
	}

	var parsedBody any
	if json.Valid(raw) {
		_ = json.Unmarshal(raw, &parsedBody)
	} else {
		parsedBody = string(raw)
	}

	out, err := json.Marshal(map[string]any{
		"status":  resp.StatusCode,
		"headers": resp.Header,
		"body":    parsedBody,
	})
	if err != nil {
		return nil, fmt.Errorf("httpfetch: encoding result: %w", err)
	}
	return out, nil
}
