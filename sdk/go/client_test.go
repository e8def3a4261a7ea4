package pabsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVerifySendsStateAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v0/scenarios/scenario_001/verify" {
			http.NotFound(w, r)
			return
		}
		var body map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["state"]; !ok {
			http.Error(w, `{"error":{"code":"bad_request"}}`, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(Run{ID: "r1", Reward: 0.75, Checks: []Check{{Name: "event_found_check", Verdict: true}}})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	run, err := c.Verify(context.Background(), "scenario_001", map[string]any{"gmail-clone": map[string]any{}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if run.ID != "r1" || run.Reward != 0.75 || len(run.Checks) != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"code":"state_unavailable","message":"state unavailable"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Verify(context.Background(), "scenario_001", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.StateUnavailable() || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected state_unavailable APIError, got %v", err)
	}
}

func TestRunsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("scenario_id") != "s1" || r.URL.Query().Get("limit") != "5" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"a"}],"next_cursor":"x|a"}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL, "").Runs(context.Background(), "s1", 5, "")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor != "x|a" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
