// Package registry maintains the source of truth for known domains and the
// directed graph of approved integrations between them.
package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polisai/govhub/pkg/domain"
)

// EdgeStatus tracks whether an approved edge is currently routable.
type EdgeStatus string

const (
	EdgeActive   EdgeStatus = "active"
	EdgeInactive EdgeStatus = "inactive"
)

// Edge is an approved integration in the topology graph. Edges exist only
// for integrations whose review was approved; the governance manager is the
// only component that creates them.
type Edge struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Target    string            `json:"target"`
	Type      string            `json:"type"`
	Config    map[string]string `json:"config,omitempty"`
	Status    EdgeStatus        `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// PathValidation is the result of a routing authorization check.
type PathValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// TopologySnapshot is a point-in-time, deep-copied view of the ecosystem
// graph. It never aliases the registry's internal state.
type TopologySnapshot struct {
	Domains []domain.Domain `json:"domains"`
	Edges   []Edge          `json:"edges"`
}

// Registry is the in-memory domain and topology store.
type Registry struct {
	mu      sync.RWMutex
	domains map[string]*domain.Domain
	edges   map[string]*Edge
	logger  *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		domains: make(map[string]*domain.Domain),
		edges:   make(map[string]*Edge),
		logger:  logger,
	}
}

// RegisterDomain inserts a new domain with status Registered.
func (r *Registry) RegisterDomain(code string, capabilities []string, metadata map[string]string) error {
	if code == "" {
		return fmt.Errorf("register domain: empty code")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.domains[code]; exists {
		return fmt.Errorf("register domain %q: %w", code, domain.ErrDuplicateDomain)
	}

	r.domains[code] = &domain.Domain{
		Code:         code,
		Capabilities: append([]string(nil), capabilities...),
		Status:       domain.DomainRegistered,
		Metadata:     copyMap(metadata),
		CreatedAt:    time.Now(),
	}

	r.logger.Info("Domain registered", "code", code, "capabilities", len(capabilities))
	return nil
}

// SetDomainStatus transitions a domain between Registered, Active and
// Suspended. Domains are never removed; suspension preserves audit history.
func (r *Registry) SetDomainStatus(code string, status domain.DomainStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.domains[code]
	if !exists {
		return fmt.Errorf("set domain status %q: %w", code, domain.ErrUnknownDomain)
	}
	d.Status = status
	r.logger.Info("Domain status changed", "code", code, "status", status)
	return nil
}

// RegisterIntegration creates an Active edge between two existing domains.
// Only the governance manager calls this, and only after review approval.
func (r *Registry) RegisterIntegration(source, target, typ string, config map[string]string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.domains[source]; !exists {
		return "", fmt.Errorf("register integration: source %q: %w", source, domain.ErrUnknownDomain)
	}
	if _, exists := r.domains[target]; !exists {
		return "", fmt.Errorf("register integration: target %q: %w", target, domain.ErrUnknownDomain)
	}
	if source == target {
		return "", fmt.Errorf("register integration %q: %w", source, domain.ErrSelfIntegration)
	}
	for _, edge := range r.edges {
		if edge.Source == source && edge.Target == target && edge.Type == typ && edge.Status != EdgeInactive {
			return "", fmt.Errorf("register integration %s->%s (%s): %w", source, target, typ, domain.ErrDuplicateEdge)
		}
	}

	edge := &Edge{
		ID:        uuid.NewString(),
		Source:    source,
		Target:    target,
		Type:      typ,
		Config:    copyMap(config),
		Status:    EdgeActive,
		CreatedAt: time.Now(),
	}
	r.edges[edge.ID] = edge

	r.logger.Info("Integration edge registered", "edge_id", edge.ID, "source", source, "target", target, "type", typ)
	return edge.ID, nil
}

// UpdateIntegrationStatus transitions an edge between Active and Inactive.
// The originating Integration record is kept eventually consistent by the
// governance manager through explicit calls, not a shared mutable object.
func (r *Registry) UpdateIntegrationStatus(edgeID string, status EdgeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	edge, exists := r.edges[edgeID]
	if !exists {
		return fmt.Errorf("update integration status %q: %w", edgeID, domain.ErrUnknownEdge)
	}
	edge.Status = status
	r.logger.Info("Integration edge status changed", "edge_id", edgeID, "status", status)
	return nil
}

// RemoveEdge deletes an edge. It exists solely so the governance manager can
// roll back an edge whose integration record could not be finalized.
func (r *Registry) RemoveEdge(edgeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.edges, edgeID)
}

// ValidatePath reports whether source may route to target. Valid only when a
// direct Active edge exists and neither endpoint is suspended; the model is
// intentionally not transitively routable. A hub topology must be expressed
// as two explicit edges.
func (r *Registry) ValidatePath(source, target string) PathValidation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, exists := r.domains[source]
	if !exists {
		return PathValidation{Reason: fmt.Sprintf("source domain %q not registered", source)}
	}
	tgt, exists := r.domains[target]
	if !exists {
		return PathValidation{Reason: fmt.Sprintf("target domain %q not registered", target)}
	}
	if src.Status == domain.DomainSuspended {
		return PathValidation{Reason: fmt.Sprintf("source domain %q suspended", source)}
	}
	if tgt.Status == domain.DomainSuspended {
		return PathValidation{Reason: fmt.Sprintf("target domain %q suspended", target)}
	}

	for _, edge := range r.edges {
		if edge.Source == source && edge.Target == target && edge.Status == EdgeActive {
			return PathValidation{Valid: true}
		}
	}
	return PathValidation{Reason: fmt.Sprintf("no active integration path %s->%s", source, target)}
}

// Domain returns a copy of the domain with the given code.
func (r *Registry) Domain(code string) (domain.Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.domains[code]
	if !exists {
		return domain.Domain{}, fmt.Errorf("domain %q: %w", code, domain.ErrUnknownDomain)
	}
	return copyDomain(d), nil
}

// Domains returns copies of all registered domains.
func (r *Registry) Domains() []domain.Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Domain, 0, len(r.domains))
	for _, d := range r.domains {
		out = append(out, copyDomain(d))
	}
	return out
}

// DomainConnections returns the set of domains the given domain has an
// Active outbound edge to.
func (r *Registry) DomainConnections(code string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, edge := range r.edges {
		if edge.Source != code || edge.Status != EdgeActive {
			continue
		}
		if _, dup := seen[edge.Target]; dup {
			continue
		}
		seen[edge.Target] = struct{}{}
		out = append(out, edge.Target)
	}
	return out
}

// Topology returns a point-in-time copy of the ecosystem graph.
func (r *Registry) Topology() TopologySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := TopologySnapshot{
		Domains: make([]domain.Domain, 0, len(r.domains)),
		Edges:   make([]Edge, 0, len(r.edges)),
	}
	for _, d := range r.domains {
		snap.Domains = append(snap.Domains, copyDomain(d))
	}
	for _, edge := range r.edges {
		snap.Edges = append(snap.Edges, copyEdge(edge))
	}
	return snap
}

// Export returns a deep copy of the registry state for persistence.
func (r *Registry) Export() TopologySnapshot {
	return r.Topology()
}

// Restore replaces the registry state from a persisted snapshot.
func (r *Registry) Restore(snap TopologySnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.domains = make(map[string]*domain.Domain, len(snap.Domains))
	for i := range snap.Domains {
		d := copyDomain(&snap.Domains[i])
		r.domains[d.Code] = &d
	}
	r.edges = make(map[string]*Edge, len(snap.Edges))
	for i := range snap.Edges {
		e := copyEdge(&snap.Edges[i])
		r.edges[e.ID] = &e
	}
}

func copyDomain(d *domain.Domain) domain.Domain {
	out := *d
	out.Capabilities = append([]string(nil), d.Capabilities...)
	out.Metadata = copyMap(d.Metadata)
	return out
}

func copyEdge(e *Edge) Edge {
	out := *e
	out.Config = copyMap(e.Config)
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
