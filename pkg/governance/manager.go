// Package governance implements the orchestrator that ties the registry,
// review pipeline and compliance tracker together.
//
// Manager methods are the only sanctioned write path into governance state:
// callers never create Integrations or Reviews directly. Validation errors
// are surfaced synchronously as typed failures; they represent caller
// misuse and are never swallowed.
package governance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/govhub/pkg/compliance"
	"github.com/polisai/govhub/pkg/domain"
	"github.com/polisai/govhub/pkg/eventbus"
	"github.com/polisai/govhub/pkg/idgen"
	"github.com/polisai/govhub/pkg/policy"
	"github.com/polisai/govhub/pkg/registry"
	"github.com/polisai/govhub/pkg/review"
	"github.com/polisai/govhub/pkg/storage"
	"github.com/polisai/govhub/pkg/telemetry"
)

// RegistrationResult reports the records created for a new domain.
type RegistrationResult struct {
	DomainCode   string `json:"domain_code"`
	ComplianceID string `json:"compliance_id"`
}

// IntegrationResult reports the records created for an integration request.
type IntegrationResult struct {
	IntegrationID string `json:"integration_id"`
	ReviewID      string `json:"review_id"`
	ComplianceID  string `json:"compliance_id"`
}

// Manager orchestrates domain registration, integration requests and review
// outcomes. Construct one per process and pass it by reference; there is no
// hidden global state.
type Manager struct {
	registry   *registry.Registry
	reviews    *review.Pipeline
	compliance *compliance.Tracker
	bus        *eventbus.Bus
	gate       *policy.Gate
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	intSeq *idgen.Sequence

	// mu serializes orchestration writes. Fine-grained locking lives inside
	// the individual components; this lock only protects the integration
	// table and the approve/reject read-modify-write sections.
	mu           sync.RWMutex
	integrations map[string]*domain.Integration
}

// Option configures a Manager.
type Option func(*Manager)

// WithPolicyGate installs an admission policy gate.
func WithPolicyGate(gate *policy.Gate) Option {
	return func(m *Manager) { m.gate = gate }
}

// WithMetrics installs Prometheus metrics recording.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Manager over its three collaborators and the event bus.
func New(reg *registry.Registry, reviews *review.Pipeline, tracker *compliance.Tracker, bus *eventbus.Bus, opts ...Option) *Manager {
	m := &Manager{
		registry:     reg,
		reviews:      reviews,
		compliance:   tracker,
		bus:          bus,
		logger:       slog.Default(),
		tracer:       otel.Tracer("govhub.governance"),
		intSeq:       idgen.NewSequence("INT"),
		integrations: make(map[string]*domain.Integration),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterDomain creates the domain and its compliance record as one logical
// transaction: if either sub-step fails the other is rolled back, so there
// is never a domain without a compliance record or vice versa.
func (m *Manager) RegisterDomain(ctx context.Context, code string, capabilities []string, complianceRequirements []string) (RegistrationResult, error) {
	ctx, span := m.tracer.Start(ctx, "governance.RegisterDomain", trace.WithAttributes(attribute.String("domain.code", code)))
	defer span.End()

	// Check for a duplicate up front so the failure surfaces as a domain
	// error, not as a compliance-record collision.
	if _, err := m.registry.Domain(code); err == nil {
		m.recordOp(ctx, "register_domain", "failure")
		return RegistrationResult{}, fmt.Errorf("register domain %q: %w", code, domain.ErrDuplicateDomain)
	}

	complianceID, err := m.compliance.CreateRecord(code, "domain", code, domain.CategoryDataGovernance, complianceRequirements)
	if err != nil {
		m.recordOp(ctx, "register_domain", "failure")
		return RegistrationResult{}, fmt.Errorf("register domain %q: %w", code, err)
	}

	if err := m.registry.RegisterDomain(code, capabilities, nil); err != nil {
		// Roll back the compliance record; the domain was never created.
		m.compliance.Remove(complianceID)
		m.recordOp(ctx, "register_domain", "failure")
		return RegistrationResult{}, err
	}

	m.publish(domain.TopicDomainRegister, domain.DomainRegistration{
		Code:         code,
		Capabilities: capabilities,
		ComplianceID: complianceID,
	})
	m.recordOp(ctx, "register_domain", "success")
	m.updateTopologyGauges()

	m.logger.Info("Domain registered", "code", code, "compliance_id", complianceID)
	return RegistrationResult{DomainCode: code, ComplianceID: complianceID}, nil
}

// RequestIntegration opens an integration request between two registered
// domains. It allocates the integration id, opens a Pending review and an
// integration-scoped compliance record, and leaves the integration in
// PendingReview. On any validation failure nothing is created.
func (m *Manager) RequestIntegration(ctx context.Context, source, target, typ, description string, priority domain.Priority) (IntegrationResult, error) {
	ctx, span := m.tracer.Start(ctx, "governance.RequestIntegration", trace.WithAttributes(
		attribute.String("integration.source", source),
		attribute.String("integration.target", target),
		attribute.String("integration.type", typ),
	))
	defer span.End()

	if !domain.ValidPriority(priority) {
		return IntegrationResult{}, fmt.Errorf("request integration: invalid priority %q", priority)
	}
	if source == target {
		m.recordOp(ctx, "request_integration", "failure")
		return IntegrationResult{}, fmt.Errorf("request integration %q: %w", source, domain.ErrSelfIntegration)
	}

	// Validate both endpoints before creating anything, so a failure here
	// leaves no partial side effects.
	srcDomain, err := m.registry.Domain(source)
	if err != nil {
		m.recordOp(ctx, "request_integration", "failure")
		return IntegrationResult{}, err
	}
	tgtDomain, err := m.registry.Domain(target)
	if err != nil {
		m.recordOp(ctx, "request_integration", "failure")
		return IntegrationResult{}, err
	}

	reviewType := domain.ReviewIntegration
	decision, err := m.gate.Evaluate(ctx, policy.Input{
		Source:             source,
		Target:             target,
		Type:               typ,
		Priority:           priority,
		SourceCapabilities: srcDomain.Capabilities,
		TargetCapabilities: tgtDomain.Capabilities,
	})
	if err != nil {
		// Fail closed: an unevaluable policy blocks the request.
		m.recordOp(ctx, "request_integration", "failure")
		return IntegrationResult{}, fmt.Errorf("request integration %s->%s: %w", source, target, err)
	}
	if !decision.Allow {
		m.recordOp(ctx, "request_integration", "denied")
		return IntegrationResult{}, fmt.Errorf("request integration %s->%s: %w: %s", source, target, domain.ErrPolicyDenied, decision.Reason)
	}
	if decision.Priority != "" {
		priority = decision.Priority
	}
	if decision.RequireSecurityReview {
		reviewType = domain.ReviewSecurity
	}

	integrationID := m.intSeq.Next()

	reviewID, err := m.reviews.Create(reviewType, integrationID, priority)
	if err != nil {
		m.recordOp(ctx, "request_integration", "failure")
		return IntegrationResult{}, fmt.Errorf("request integration %s: %w", integrationID, err)
	}

	complianceID, err := m.compliance.CreateRecord(integrationID, "integration", source, domain.CategoryIntegrationStandards, nil)
	if err != nil {
		// Roll back the review; the integration was never recorded.
		_ = m.reviews.Cancel(reviewID, "governance", "integration request aborted")
		m.recordOp(ctx, "request_integration", "failure")
		return IntegrationResult{}, fmt.Errorf("request integration %s: %w", integrationID, err)
	}

	integ := &domain.Integration{
		ID:           integrationID,
		SourceDomain: source,
		TargetDomain: target,
		Type:         typ,
		Description:  description,
		Priority:     priority,
		Status:       domain.IntegrationPendingReview,
		ReviewID:     reviewID,
		ComplianceID: complianceID,
		CreatedAt:    time.Now(),
	}

	m.mu.Lock()
	m.integrations[integrationID] = integ
	m.mu.Unlock()

	m.recordOp(ctx, "request_integration", "success")
	m.logger.Info("Integration requested",
		"integration_id", integrationID,
		"source", source,
		"target", target,
		"review_id", reviewID,
		"priority", priority,
	)
	return IntegrationResult{IntegrationID: integrationID, ReviewID: reviewID, ComplianceID: complianceID}, nil
}

// ApproveIntegration activates an integration whose review has been
// approved. When the review is still Pending or InReview, the call drives
// assign+start+approve with the supplied reviewer as a convenience.
//
// Failure handling is asymmetric on purpose: if the registry rejects the
// edge (for example a duplicate detected concurrently) the integration is
// marked Rejected with the reason recorded, never left ambiguous.
//
// The call is idempotent: approving an already-Active integration returns
// Active without creating a second edge.
func (m *Manager) ApproveIntegration(ctx context.Context, integrationID, reviewer, notes string) (domain.IntegrationStatus, error) {
	ctx, span := m.tracer.Start(ctx, "governance.ApproveIntegration", trace.WithAttributes(attribute.String("integration.id", integrationID)))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	integ, exists := m.integrations[integrationID]
	if !exists {
		m.recordOp(ctx, "approve_integration", "failure")
		return "", fmt.Errorf("approve integration %q: %w", integrationID, domain.ErrUnknownIntegration)
	}
	if integ.Status == domain.IntegrationActive {
		return domain.IntegrationActive, nil
	}
	if integ.Status == domain.IntegrationInactive {
		m.recordOp(ctx, "approve_integration", "failure")
		return integ.Status, fmt.Errorf("approve integration %s: already approved but deactivated, reactivate instead", integrationID)
	}

	rev, err := m.reviews.Review(integ.ReviewID)
	if err != nil {
		m.recordOp(ctx, "approve_integration", "failure")
		return integ.Status, err
	}

	if rev.Status != domain.ReviewApproved {
		if err := m.driveApproval(rev, reviewer, notes); err != nil {
			m.recordOp(ctx, "approve_integration", "failure")
			return integ.Status, err
		}
	}

	edgeID, err := m.registry.RegisterIntegration(integ.SourceDomain, integ.TargetDomain, integ.Type, nil)
	if err != nil {
		integ.Status = domain.IntegrationRejected
		integ.StatusReason = err.Error()
		m.recordOp(ctx, "approve_integration", "rejected")
		m.logger.Warn("Integration rejected at activation",
			"integration_id", integrationID,
			"reason", err.Error(),
		)
		return domain.IntegrationRejected, fmt.Errorf("approve integration %s: %w", integrationID, err)
	}

	integ.Status = domain.IntegrationActive
	integ.EdgeID = edgeID

	m.recordOp(ctx, "approve_integration", "success")
	m.updateTopologyGauges()
	m.logger.Info("Integration activated", "integration_id", integrationID, "edge_id", edgeID, "reviewer", reviewer)
	return domain.IntegrationActive, nil
}

// RejectIntegration drives the review to Rejected and records the outcome on
// the integration. Rejecting an already-Rejected integration is a no-op.
func (m *Manager) RejectIntegration(ctx context.Context, integrationID, reviewer, reason string) (domain.IntegrationStatus, error) {
	ctx, span := m.tracer.Start(ctx, "governance.RejectIntegration", trace.WithAttributes(attribute.String("integration.id", integrationID)))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	integ, exists := m.integrations[integrationID]
	if !exists {
		m.recordOp(ctx, "reject_integration", "failure")
		return "", fmt.Errorf("reject integration %q: %w", integrationID, domain.ErrUnknownIntegration)
	}
	if integ.Status == domain.IntegrationRejected {
		return domain.IntegrationRejected, nil
	}
	if integ.Status == domain.IntegrationActive {
		m.recordOp(ctx, "reject_integration", "failure")
		return integ.Status, fmt.Errorf("reject integration %s: already active, deactivate instead", integrationID)
	}

	rev, err := m.reviews.Review(integ.ReviewID)
	if err != nil {
		m.recordOp(ctx, "reject_integration", "failure")
		return integ.Status, err
	}
	if rev.Status != domain.ReviewRejected {
		if rev.Status == domain.ReviewPending {
			if err := m.reviews.AssignReviewers(rev.ID, reviewer); err != nil {
				return integ.Status, err
			}
			if err := m.reviews.Start(rev.ID); err != nil {
				return integ.Status, err
			}
		}
		if err := m.reviews.Reject(rev.ID, reviewer, reason); err != nil {
			m.recordOp(ctx, "reject_integration", "failure")
			return integ.Status, err
		}
	}

	integ.Status = domain.IntegrationRejected
	integ.StatusReason = reason

	m.recordOp(ctx, "reject_integration", "success")
	m.logger.Info("Integration rejected", "integration_id", integrationID, "reviewer", reviewer, "reason", reason)
	return domain.IntegrationRejected, nil
}

// SetIntegrationActive toggles an activated integration between Active and
// Inactive, keeping the registry edge and the integration record in
// agreement through explicit calls.
func (m *Manager) SetIntegrationActive(ctx context.Context, integrationID string, active bool) error {
	_, span := m.tracer.Start(ctx, "governance.SetIntegrationActive", trace.WithAttributes(attribute.String("integration.id", integrationID)))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	integ, exists := m.integrations[integrationID]
	if !exists {
		return fmt.Errorf("set integration active %q: %w", integrationID, domain.ErrUnknownIntegration)
	}
	if integ.EdgeID == "" {
		return fmt.Errorf("set integration active %s: integration was never activated", integrationID)
	}

	edgeStatus := registry.EdgeInactive
	integStatus := domain.IntegrationInactive
	if active {
		edgeStatus = registry.EdgeActive
		integStatus = domain.IntegrationActive
	}
	if err := m.registry.UpdateIntegrationStatus(integ.EdgeID, edgeStatus); err != nil {
		return err
	}
	integ.Status = integStatus
	m.updateTopologyGauges()
	return nil
}

// Integration returns a copy of the integration record.
func (m *Manager) Integration(integrationID string) (domain.Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	integ, exists := m.integrations[integrationID]
	if !exists {
		return domain.Integration{}, fmt.Errorf("integration %q: %w", integrationID, domain.ErrUnknownIntegration)
	}
	return *integ, nil
}

// Integrations returns copies of all integration records.
func (m *Manager) Integrations() []domain.Integration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Integration, 0, len(m.integrations))
	for _, integ := range m.integrations {
		out = append(out, *integ)
	}
	return out
}

// Snapshot assembles the complete persistent state of the hub.
func (m *Manager) Snapshot() *storage.Snapshot {
	m.mu.RLock()
	integrations := make([]domain.Integration, 0, len(m.integrations))
	for _, integ := range m.integrations {
		integrations = append(integrations, *integ)
	}
	seq := m.intSeq.Current()
	m.mu.RUnlock()

	return &storage.Snapshot{
		Topology:           m.registry.Export(),
		Integrations:       integrations,
		Reviews:            m.reviews.Export(),
		ComplianceRecords:  m.compliance.Export(),
		LastIntegrationSeq: seq,
	}
}

// RestoreSnapshot loads persisted state into the manager and its
// collaborators, advancing the id sequences so no id is ever reused.
func (m *Manager) RestoreSnapshot(snap *storage.Snapshot) {
	if snap == nil {
		return
	}

	m.registry.Restore(snap.Topology)
	m.reviews.Restore(snap.Reviews)
	m.compliance.Restore(snap.ComplianceRecords)

	m.mu.Lock()
	m.integrations = make(map[string]*domain.Integration, len(snap.Integrations))
	var max uint64
	for i := range snap.Integrations {
		integ := snap.Integrations[i]
		m.integrations[integ.ID] = &integ
		if n, ok := idgen.Parse("INT", integ.ID); ok && n > max {
			max = n
		}
	}
	if snap.LastIntegrationSeq > max {
		max = snap.LastIntegrationSeq
	}
	m.intSeq.Restore(max)
	m.mu.Unlock()

	m.updateTopologyGauges()
	m.logger.Info("Governance state restored",
		"domains", len(snap.Topology.Domains),
		"integrations", len(snap.Integrations),
		"reviews", len(snap.Reviews),
	)
}

// driveApproval advances a review to Approved on behalf of a single caller,
// assigning and starting as needed. Terminal non-approved reviews fail with
// ErrReviewNotApproved.
func (m *Manager) driveApproval(rev domain.Review, reviewer, notes string) error {
	switch rev.Status {
	case domain.ReviewPending:
		if err := m.reviews.AssignReviewers(rev.ID, reviewer); err != nil {
			return err
		}
		if err := m.reviews.Start(rev.ID); err != nil {
			return err
		}
	case domain.ReviewInReview:
		// Ready for approval as-is.
	default:
		return fmt.Errorf("integration review %s is %s: %w", rev.ID, rev.Status, domain.ErrReviewNotApproved)
	}
	return m.reviews.Approve(rev.ID, reviewer, notes)
}

func (m *Manager) publish(topic string, payload any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(topic, payload); err != nil {
		m.logger.Warn("Governance event publish failed", "topic", topic, "error", err)
	}
}

func (m *Manager) recordOp(ctx context.Context, operation, outcome string) {
	if m.metrics != nil {
		m.metrics.RecordGovernanceOp(operation, outcome)
	}
	telemetry.RecordGovernanceEvent(ctx, operation, outcome)
}

func (m *Manager) updateTopologyGauges() {
	if m.metrics == nil {
		return
	}
	topo := m.registry.Topology()
	active := 0
	for _, edge := range topo.Edges {
		if edge.Status == registry.EdgeActive {
			active++
		}
	}
	m.metrics.SetTopologySize(len(topo.Domains), active)
}
