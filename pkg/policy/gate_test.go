package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/govhub/pkg/domain"
)

const admissionModule = `package govhub

default admission := {"allow": true}

admission := {"allow": false, "reason": "direct database integrations are not permitted"} if {
	input.type == "raw-db"
}

admission := {"allow": true, "priority": "critical", "require_security_review": true} if {
	input.type == "payments"
}
`

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := NewGate(context.Background(), GateOptions{
		Modules: map[string]string{"admission.rego": admissionModule},
	})
	require.NoError(t, err)
	return gate
}

func TestNewGateRequiresModules(t *testing.T) {
	_, err := NewGate(context.Background(), GateOptions{})
	assert.Error(t, err)
}

func TestNewGateRejectsBadRego(t *testing.T) {
	_, err := NewGate(context.Background(), GateOptions{
		Modules: map[string]string{"bad.rego": "package govhub\n\nadmission :="},
	})
	assert.Error(t, err)
}

func TestEvaluateDeny(t *testing.T) {
	gate := newTestGate(t)

	d, err := gate.Evaluate(context.Background(), Input{
		Source: "A", Target: "B", Type: "raw-db", Priority: domain.PriorityNormal,
	})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Contains(t, d.Reason, "not permitted")
}

func TestEvaluateEscalation(t *testing.T) {
	gate := newTestGate(t)

	d, err := gate.Evaluate(context.Background(), Input{
		Source: "A", Target: "B", Type: "payments", Priority: domain.PriorityNormal,
	})
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.Equal(t, domain.PriorityCritical, d.Priority)
	assert.True(t, d.RequireSecurityReview)
}

func TestEvaluateDefaultAllow(t *testing.T) {
	gate := newTestGate(t)

	d, err := gate.Evaluate(context.Background(), Input{
		Source: "A", Target: "B", Type: "api", Priority: domain.PriorityNormal,
	})
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.Empty(t, d.Priority)
	assert.False(t, d.RequireSecurityReview)
}

func TestNilGateAllows(t *testing.T) {
	var gate *Gate

	d, err := gate.Evaluate(context.Background(), Input{Source: "A", Target: "B"})
	require.NoError(t, err)
	assert.True(t, d.Allow)
}

func TestReload(t *testing.T) {
	gate := newTestGate(t)

	denyAll := `package govhub

admission := {"allow": false, "reason": "freeze in effect"}
`
	require.NoError(t, gate.Reload(context.Background(), map[string]string{"admission.rego": denyAll}))

	d, err := gate.Evaluate(context.Background(), Input{Source: "A", Target: "B", Type: "api"})
	require.NoError(t, err)
	assert.False(t, d.Allow)

	// A broken reload keeps the previous modules active.
	assert.Error(t, gate.Reload(context.Background(), map[string]string{"bad.rego": "not rego"}))
	d, err = gate.Evaluate(context.Background(), Input{Source: "A", Target: "B", Type: "api"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
}
