// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package httpfetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchParsesJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hello":"world"}`))
	}))
	defer server.Close()

	f := New(Config{})
	resp, err := f.Fetch(context.Background(), "GET", server.URL, nil, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	var parsed map[string]any
	json.Unmarshal(resp, &parsed)
	if parsed["status"].(float64) != 200 {
		t.Fatalf("status = %v, want 200", parsed["status"])
	}
	body := parsed["body"].(map[string]any)
	if body["hello"] != "world" {
		t.Fatalf("body = %v", body)
	}
}

func TestFetchFallsBackToStringBodyForNonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text"))
	}))
	defer server.Close()

	f := New(Config{})
	resp, err := f.Fetch(context.Background(), "GET", server.URL, nil, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	var parsed map[string]any
	json.Unmarshal(resp, &parsed)
	if parsed["body"] != "plain text" {
		t.Fatalf("body = %v, want plain text", parsed["body"])
	}
}

func TestFetchSendsRequestBodyAndHeaders(t *testing.T) {
	var gotBody []byte
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Test")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = buf[:n]
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), "POST", server.URL, []byte(`{"a":1}`), map[string]string{"X-Test": "yes"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotHeader != "yes" {
		t.Fatalf("header = %q, want yes", gotHeader)
	}
	if string(gotBody) != `{"a":1}` {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestFetchTruncatesOversizedResponse(t *testing.T) {
	big := make([]byte, 100)
	for i := range big {
		big[i] = 'x'
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(big)
	}))
	defer server.Close()

	f := New(Config{MaxResponseLen: 10})
	resp, err := f.Fetch(context.Background(), "GET", server.URL, nil, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	var parsed map[string]any
	json.Unmarshal(resp, &parsed)
	if len(parsed["body"].(string)) != 10 {
		t.Fatalf("body length = %d, want 10", len(parsed["body"].(string)))
	}
}
