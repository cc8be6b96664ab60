package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteOutputFormats(t *testing.T) {
	payload := map[string]any{"integration_id": "INT-000001", "status": "active"}

	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: "yaml", want: "integration_id: INT-000001"},
		{format: "", want: "integration_id: INT-000001"},
		{format: "json", want: `"integration_id": "INT-000001"`},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := writeOutput(&buf, tt.format, payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error for unknown format")
				}
				return
			}
			if err != nil {
				t.Fatalf("writeOutput failed: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestClientRendersServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"domain already registered"}`))
	}))
	defer ts.Close()

	c := &apiClient{baseURL: ts.URL, output: "yaml", httpc: ts.Client(), out: &bytes.Buffer{}}
	err := c.post("/v1/domains", map[string]any{"code": "orders"})
	if err == nil {
		t.Fatal("expected an error from a 409 response")
	}
	if !strings.Contains(err.Error(), "domain already registered") {
		t.Errorf("error %q does not surface the server message", err)
	}
}

func TestClientRendersPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/topology" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"domains":[{"code":"orders"}],"edges":[]}`))
	}))
	defer ts.Close()

	var buf bytes.Buffer
	c := &apiClient{baseURL: ts.URL, output: "yaml", httpc: ts.Client(), out: &buf}
	if err := c.get("/v1/topology"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(buf.String(), "code: orders") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()

	expected := []string{
		"register-domain", "request-integration", "approve", "reject",
		"integrations", "topology", "compliance", "reviews",
	}
	for _, name := range expected {
		found := false
		for _, sub := range root.Commands() {
			if strings.HasPrefix(sub.Use, name) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}
