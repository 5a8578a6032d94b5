package openapi

import (
	"encoding/json"
	"testing"
)

func TestGenerateCoversGatewaySurface(t *testing.T) {
	doc := Generate("http://localhost:8080")

	wantPaths := []string{
		"/v1/messages/send-text",
		"/v1/messages/status/{messageId}",
		"/v1/connection/info",
		"/health",
		"/webhooks/billing",
		"/admin/v1/session",
		"/admin/v1/connections",
		"/admin/v1/connections/{id}/key",
		"/admin/v1/audit-logs",
	}
	for _, p := range wantPaths {
		if doc.Paths.Value(p) == nil {
			t.Errorf("document missing path %q", p)
		}
	}

	if _, ok := doc.Components.SecuritySchemes["apiKey"]; !ok {
		t.Error("missing apiKey security scheme")
	}
	if _, ok := doc.Components.SecuritySchemes["sessionAuth"]; !ok {
		t.Error("missing sessionAuth security scheme")
	}
	if _, ok := doc.Components.Schemas["ErrorResponse"]; !ok {
		t.Error("missing ErrorResponse schema")
	}
}

func TestGenerateMarshalsToJSON(t *testing.T) {
	doc := Generate("http://localhost:8080")
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	var round map[string]interface{}
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	if round["openapi"] != "3.1.0" {
		t.Errorf("openapi version = %v, want 3.1.0", round["openapi"])
	}
}
