// Package policy evaluates governance admission rules for integration
// requests using embedded OPA rego modules.
//
// The gate runs before any record is created: it can deny a request
// outright, escalate its priority, or require a security review instead of
// the default integration review. Evaluation errors fail closed.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/polisai/govhub/pkg/domain"
)

const defaultEntrypoint = "govhub/admission"

// Input describes an integration request presented to the gate.
type Input struct {
	Source             string          `json:"source"`
	Target             string          `json:"target"`
	Type               string          `json:"type"`
	Priority           domain.Priority `json:"priority"`
	SourceCapabilities []string        `json:"source_capabilities"`
	TargetCapabilities []string        `json:"target_capabilities"`
}

// Decision is the gate's verdict on a request.
type Decision struct {
	Allow                 bool
	Reason                string
	Priority              domain.Priority // non-empty when the policy escalates
	RequireSecurityReview bool
}

// GateOptions control gate construction.
type GateOptions struct {
	// Entrypoint is the policy decision path (e.g. "govhub/admission").
	Entrypoint string
	// Modules contains the rego modules loaded into the gate.
	Modules map[string]string
}

// Gate evaluates admission decisions using an embedded OPA instance.
// A nil *Gate allows everything, so callers can treat the gate as optional.
type Gate struct {
	entrypoint string
	mu         sync.RWMutex
	prepared   *rego.PreparedEvalQuery
}

// NewGate parses and compiles the supplied rego modules. Syntax errors
// surface at construction, not at evaluation time.
func NewGate(ctx context.Context, opts GateOptions) (*Gate, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}
	if len(opts.Modules) == 0 {
		return nil, errors.New("policy gate requires at least one rego module")
	}

	names := make([]string, 0, len(opts.Modules))
	for name := range opts.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	regoOpts := make([]func(*rego.Rego), 0, len(names)+1)
	regoOpts = append(regoOpts, rego.Query("data."+strings.ReplaceAll(entry, "/", ".")))
	for _, name := range names {
		module, err := ast.ParseModuleWithOpts(name, opts.Modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		regoOpts = append(regoOpts, rego.ParsedModule(module))
	}

	prepared, err := rego.New(regoOpts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}

	return &Gate{entrypoint: entry, prepared: &prepared}, nil
}

// Evaluate runs the admission policy for one request. A nil gate or a policy
// that produces no result allows the request.
func (g *Gate) Evaluate(ctx context.Context, input Input) (Decision, error) {
	if g == nil {
		return Decision{Allow: true}, nil
	}

	payload := map[string]any{
		"source":              input.Source,
		"target":              input.Target,
		"type":                input.Type,
		"priority":            string(input.Priority),
		"source_capabilities": toAnySlice(input.SourceCapabilities),
		"target_capabilities": toAnySlice(input.TargetCapabilities),
	}

	g.mu.RLock()
	prepared := g.prepared
	g.mu.RUnlock()

	results, err := prepared.Eval(ctx, rego.EvalInput(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("policy evaluation: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allow: true}, nil
	}

	verdict, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("policy evaluation: unexpected result type %T", results[0].Expressions[0].Value)
	}

	decision := Decision{Allow: true}
	if allow, present := verdict["allow"].(bool); present {
		decision.Allow = allow
	}
	decision.Reason, _ = verdict["reason"].(string)
	if p, present := verdict["priority"].(string); present && domain.ValidPriority(domain.Priority(p)) {
		decision.Priority = domain.Priority(p)
	}
	decision.RequireSecurityReview, _ = verdict["require_security_review"].(bool)
	return decision, nil
}

// Reload swaps in a freshly compiled module set, used for hot reload from
// the config provider. The old modules stay active if compilation fails.
func (g *Gate) Reload(ctx context.Context, modules map[string]string) error {
	if g == nil {
		return errors.New("reload on nil policy gate")
	}
	fresh, err := NewGate(ctx, GateOptions{Entrypoint: g.entrypoint, Modules: modules})
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.prepared = fresh.prepared
	g.mu.Unlock()
	return nil
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
