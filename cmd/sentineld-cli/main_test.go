package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestParseJSONMap(t *testing.T) {
	values, err := parseJSONMap(`{"foo":"bar"}`)
	if err != nil {
		t.Fatalf("parseJSONMap returned error: %v", err)
	}
	expected := map[string]any{"foo": "bar"}
	if !reflect.DeepEqual(values, expected) {
		t.Fatalf("expected %v, got %v", expected, values)
	}

	if values, err := parseJSONMap(""); err != nil || values != nil {
		t.Fatalf("expected nil, nil for blank input, got %v, %v", values, err)
	}

	if _, err := parseJSONMap("not json"); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestAPIClientRequestSetsBearerSecret(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, secret: "s3cr3t", http: srv.Client()}
	data, err := client.request(context.Background(), http.MethodGet, "/health", nil)
	if err != nil {
		t.Fatalf("request returned error: %v", err)
	}
	if gotAuth != "Bearer s3cr3t" {
		t.Fatalf("expected bearer secret header, got %q", gotAuth)
	}
	var decoded map[string]bool
	if err := json.Unmarshal(data, &decoded); err != nil || !decoded["ok"] {
		t.Fatalf("unexpected response body: %s", data)
	}
}

func TestAPIClientRequestReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid bearer secret"))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, http: srv.Client()}
	if _, err := client.request(context.Background(), http.MethodGet, "/state:request", nil); err == nil {
		t.Fatalf("expected error for 401 response")
	}
}

func TestGetenvFallsBackWhenUnset(t *testing.T) {
	if got := getenv("SENTINELD_CLI_TEST_UNSET_VAR", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
