package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVersionHandlerIncludesBuildAndProvider(t *testing.T) {
	handler := NewVersionHandler(
		BuildInfo{Name: "careerlens", Version: "1.2.3", Commit: "abcd123", BuildDate: "2025-11-07T12:00:00Z"},
		InferenceInfo{Provider: "openai", Model: "gpt-4o-mini"},
	)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp VersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.App.Name != "careerlens" || resp.App.Version != "1.2.3" || resp.App.Commit != "abcd123" {
		t.Fatalf("unexpected app info: %+v", resp.App)
	}
	if resp.Inference.Provider != "openai" || resp.Inference.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected inference info: %+v", resp.Inference)
	}
	if resp.Dependencies.Gofulmen == "" || resp.Dependencies.Crucible == "" {
		t.Fatal("expected dependency versions to be populated")
	}
}

func TestVersionHandlerDefaultsName(t *testing.T) {
	rec := httptest.NewRecorder()
	NewVersionHandler(BuildInfo{Version: "dev"}, InferenceInfo{})(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var resp VersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.App.Name != "careerlens" {
		t.Fatalf("expected default name, got %s", resp.App.Name)
	}
}
