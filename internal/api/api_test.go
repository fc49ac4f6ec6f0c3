package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/practica-ai/practica/internal/api"
	"github.com/practica-ai/practica/internal/testutil"
)

func TestEventsRejectsNonPost(t *testing.T) {
	srv := testutil.NewTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET /v1/events")
	if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", allow)
	}
}

func TestEventsRejectsBadJSON(t *testing.T) {
	srv := testutil.NewTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "bad JSON")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestEventsRejectsInvalidIdentity(t *testing.T) {
	srv := testutil.NewTestServer()
	rr := testutil.PostJSON(t, srv.Handler(), "/v1/events", api.EventRequest{
		BotID: "", ChatID: 1, UserID: 1, Text: "hi",
	})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "empty bot_id")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestEventsRejectsInvalidAudioEncoding(t *testing.T) {
	srv := testutil.NewTestServer()
	rr := testutil.PostJSON(t, srv.Handler(), "/v1/events", api.EventRequest{
		BotID: "bot", ChatID: 1, UserID: 1, Audio: "not-base64!!!",
	})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "bad audio")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestEventsMenuRoundTrip(t *testing.T) {
	srv := testutil.NewTestServer()
	rr := testutil.PostJSON(t, srv.Handler(), "/v1/events", api.EventRequest{
		BotID: "bot", ChatID: 1, UserID: 1, Text: "hello",
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "menu event")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %v", resp["result"])
	}
	replies, ok := result["replies"].([]any)
	if !ok || len(replies) != 1 {
		t.Fatalf("expected one reply, got %v", result["replies"])
	}
	if s, _ := replies[0].(string); !strings.Contains(s, "Choose a practice case") {
		t.Errorf("expected menu text, got %q", s)
	}
}

func TestEventsProviderFailureYieldsServerError(t *testing.T) {
	// The test server registers no providers, so selecting a case
	// exhausts the chain.
	srv := testutil.NewTestServer()
	rr := testutil.PostJSON(t, srv.Handler(), "/v1/events", api.EventRequest{
		BotID: "bot", ChatID: 1, UserID: 1, Text: "1",
	})
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "case start without providers")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestHealthEndpoint(t *testing.T) {
	srv := testutil.NewTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testutil.NewTestServer()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "metrics")
}
