package adminapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/govhub/pkg/compliance"
	"github.com/polisai/govhub/pkg/domain"
	"github.com/polisai/govhub/pkg/governance"
	"github.com/polisai/govhub/pkg/registry"
	"github.com/polisai/govhub/pkg/review"
	"github.com/polisai/govhub/pkg/telemetry"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	reg := registry.New(nil)
	reviews := review.New()
	tracker := compliance.New(nil)
	manager := governance.New(reg, reviews, tracker, nil)

	srv := NewServer(Config{
		Manager:  manager,
		Registry: reg,
		Tracker:  tracker,
		Reviews:  reviews,
		Metrics:  telemetry.NewMetrics(),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, dst any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func registerDomain(t *testing.T, base, code string) {
	t.Helper()
	resp := postJSON(t, base+"/v1/domains", map[string]any{"code": code})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp := getJSON(t, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterDomainEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/domains", map[string]any{
		"code":                    "orders",
		"capabilities":            []string{"api"},
		"compliance_requirements": []string{"data-map"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res governance.RegistrationResult
	decodeBody(t, resp, &res)
	assert.Equal(t, "orders", res.DomainCode)
	assert.NotEmpty(t, res.ComplianceID)

	// Duplicate registration conflicts.
	dup := postJSON(t, ts.URL+"/v1/domains", map[string]any{"code": "orders"})
	assert.Equal(t, http.StatusConflict, dup.StatusCode)
}

func TestIntegrationLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	registerDomain(t, ts.URL, "orders")
	registerDomain(t, ts.URL, "billing")

	resp := postJSON(t, ts.URL+"/v1/integrations", map[string]any{
		"source": "orders",
		"target": "billing",
		"type":   "api",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res governance.IntegrationResult
	decodeBody(t, resp, &res)
	assert.Equal(t, "INT-000001", res.IntegrationID)

	approve := postJSON(t, ts.URL+"/v1/integrations/"+res.IntegrationID+"/approve", map[string]any{
		"reviewer": "alice",
	})
	require.Equal(t, http.StatusOK, approve.StatusCode)

	var action reviewActionResponse
	decodeBody(t, approve, &action)
	assert.Equal(t, domain.IntegrationActive, action.Status)

	var integ domain.Integration
	getJSON(t, ts.URL+"/v1/integrations/"+res.IntegrationID, &integ)
	assert.Equal(t, domain.IntegrationActive, integ.Status)
	assert.NotEmpty(t, integ.EdgeID)
}

func TestRejectIntegrationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	registerDomain(t, ts.URL, "orders")
	registerDomain(t, ts.URL, "billing")

	var res governance.IntegrationResult
	resp := postJSON(t, ts.URL+"/v1/integrations", map[string]any{
		"source": "orders", "target": "billing", "type": "api",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeBody(t, resp, &res)

	reject := postJSON(t, ts.URL+"/v1/integrations/"+res.IntegrationID+"/reject", map[string]any{
		"reviewer": "alice",
		"reason":   "missing data contract",
	})
	require.Equal(t, http.StatusOK, reject.StatusCode)

	var integ domain.Integration
	getJSON(t, ts.URL+"/v1/integrations/"+res.IntegrationID, &integ)
	assert.Equal(t, domain.IntegrationRejected, integ.Status)
	assert.Equal(t, "missing data contract", integ.StatusReason)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	registerDomain(t, ts.URL, "orders")

	tests := []struct {
		name string
		do   func() *http.Response
		want int
	}{
		{"unknown target domain", func() *http.Response {
			return postJSON(t, ts.URL+"/v1/integrations", map[string]any{
				"source": "orders", "target": "nope", "type": "api",
			})
		}, http.StatusNotFound},
		{"self integration", func() *http.Response {
			return postJSON(t, ts.URL+"/v1/integrations", map[string]any{
				"source": "orders", "target": "orders", "type": "api",
			})
		}, http.StatusConflict},
		{"unknown integration", func() *http.Response {
			return postJSON(t, ts.URL+"/v1/integrations/INT-999999/approve", map[string]any{"reviewer": "a"})
		}, http.StatusNotFound},
		{"malformed body", func() *http.Response {
			resp, err := http.Post(ts.URL+"/v1/domains", "application/json", bytes.NewReader([]byte("{")))
			require.NoError(t, err)
			t.Cleanup(func() { _ = resp.Body.Close() })
			return resp
		}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.do().StatusCode)
		})
	}
}

func TestTopologyAndSummaries(t *testing.T) {
	ts := newTestServer(t)
	registerDomain(t, ts.URL, "orders")
	registerDomain(t, ts.URL, "billing")

	var topo registry.TopologySnapshot
	resp := getJSON(t, ts.URL+"/v1/topology", &topo)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, topo.Domains, 2)

	var summary compliance.Summary
	getJSON(t, ts.URL+"/v1/compliance", &summary)
	assert.Equal(t, 2, summary.Records)

	var metrics review.Metrics
	getJSON(t, ts.URL+"/v1/reviews/metrics", &metrics)
	assert.Zero(t, metrics.Total)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := getJSON(t, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimiting(t *testing.T) {
	reg := registry.New(nil)
	reviews := review.New()
	tracker := compliance.New(nil)
	manager := governance.New(reg, reviews, tracker, nil)

	srv := NewServer(Config{
		Manager:  manager,
		Registry: reg,
		Tracker:  tracker,
		Reviews:  reviews,
		Limit:    LimitConfig{RequestsPerSecond: 1, BurstSize: 2},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// The burst admits two writes; the third is refused.
	codes := []string{"a", "b", "c"}
	statuses := make([]int, 0, len(codes))
	for _, code := range codes {
		resp := postJSON(t, ts.URL+"/v1/domains", map[string]any{"code": code})
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, http.StatusCreated, statuses[0])
	assert.Equal(t, http.StatusCreated, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[2])

	// Reads are never limited.
	resp := getJSON(t, ts.URL+"/v1/topology", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
