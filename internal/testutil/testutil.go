// Package testutil provides common test utilities and helpers for Practica tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/practica-ai/practica/internal/api"
	"github.com/practica-ai/practica/internal/dialogue"
	"github.com/practica-ai/practica/internal/provider"
	"github.com/practica-ai/practica/internal/recovery"
	"github.com/practica-ai/practica/internal/session"
	"github.com/practica-ai/practica/internal/store"
)

// NewTestServer creates a test API server over in-memory dependencies.
// No providers are registered; tests exercising provider paths register
// their own fakes on a gateway built directly.
func NewTestServer() *api.Server {
	st := store.NewMemoryStore()
	gateway := provider.NewGateway(st)
	engine := dialogue.NewEngine(st, recovery.NewLoader(st, nil), dialogue.NewActions(session.NewManager(st), gateway), dialogue.StepTopMenu)
	dialogue.RegisterDefaultSteps(engine)
	return api.NewServer(engine)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response body and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if response["status"] != expectedStatus {
		t.Errorf("expected status %q, got %v", expectedStatus, response["status"])
	}
	return response
}

// PostJSON marshals body and performs a POST request against handler.
func PostJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
