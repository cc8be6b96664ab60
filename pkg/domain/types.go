package domain

import "time"

// DomainStatus tracks the lifecycle of a registered domain.
type DomainStatus string

const (
	DomainRegistered DomainStatus = "registered"
	DomainActive     DomainStatus = "active"
	DomainSuspended  DomainStatus = "suspended"
)

// Domain is an independently governed organizational unit participating in
// the ecosystem. Code is immutable after creation; domains are never hard
// deleted, only suspended, to preserve audit history.
type Domain struct {
	Code         string            `json:"code"`
	Capabilities []string          `json:"capabilities"`
	Status       DomainStatus      `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Priority classifies how urgently a request should be handled.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ValidPriority reports whether p is one of the recognised priorities.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// IntegrationStatus tracks the lifecycle of an integration request.
type IntegrationStatus string

const (
	IntegrationPendingReview IntegrationStatus = "pending_review"
	IntegrationApproved      IntegrationStatus = "approved"
	IntegrationRejected      IntegrationStatus = "rejected"
	IntegrationActive        IntegrationStatus = "active"
	IntegrationInactive      IntegrationStatus = "inactive"
)

// Integration is a requested and potentially approved communication channel
// between two domains. IDs use the INT-%06d format, are assigned atomically
// at creation, and are never reused even after rejection.
//
// Status is mutated only as a side effect of the referenced Review reaching
// a terminal state; callers never set it directly.
type Integration struct {
	ID           string            `json:"id"`
	SourceDomain string            `json:"source_domain"`
	TargetDomain string            `json:"target_domain"`
	Type         string            `json:"type"`
	Description  string            `json:"description,omitempty"`
	Priority     Priority          `json:"priority"`
	Status       IntegrationStatus `json:"status"`
	StatusReason string            `json:"status_reason,omitempty"`
	ReviewID     string            `json:"review_id"`
	ComplianceID string            `json:"compliance_id"`
	EdgeID       string            `json:"edge_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ReviewType classifies what a review governs.
type ReviewType string

const (
	ReviewIntegration  ReviewType = "integration"
	ReviewSecurity     ReviewType = "security"
	ReviewQuality      ReviewType = "quality"
	ReviewArchitecture ReviewType = "architecture"
	ReviewCompliance   ReviewType = "compliance"
)

// ReviewStatus tracks the review workflow state machine.
type ReviewStatus string

const (
	ReviewPending         ReviewStatus = "pending"
	ReviewInReview        ReviewStatus = "in_review"
	ReviewApproved        ReviewStatus = "approved"
	ReviewRejected        ReviewStatus = "rejected"
	ReviewRequiresChanges ReviewStatus = "requires_changes"
	ReviewCancelled       ReviewStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s ReviewStatus) Terminal() bool {
	switch s {
	case ReviewApproved, ReviewRejected, ReviewCancelled:
		return true
	}
	return false
}

// ReviewComment is one entry in a review's append-only comment log.
type ReviewComment struct {
	Reviewer  string    `json:"reviewer"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Review is an approval workflow instance gating an Integration or other
// governed change. IDs use the REV-%06d format with the same allocation
// discipline as integration ids, on an independent counter.
type Review struct {
	ID         string          `json:"id"`
	Type       ReviewType      `json:"type"`
	SubjectRef string          `json:"subject_ref"`
	Reviewers  []string        `json:"reviewers"`
	Comments   []ReviewComment `json:"comments"`
	Status     ReviewStatus    `json:"status"`
	Priority   Priority        `json:"priority"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ComplianceCategory classifies which governance area a record covers.
type ComplianceCategory string

const (
	CategoryIntegrationStandards ComplianceCategory = "integration_standards"
	CategoryQualityMetrics       ComplianceCategory = "quality_metrics"
	CategorySecurityPolicy       ComplianceCategory = "security_policy"
	CategoryDataGovernance       ComplianceCategory = "data_governance"
	CategoryReviewProcess        ComplianceCategory = "review_process"
)

// ComplianceStatus is derived from the requirement map, never stored.
type ComplianceStatus string

const (
	ComplianceCompliant    ComplianceStatus = "compliant"
	CompliancePartial      ComplianceStatus = "partial"
	ComplianceNonCompliant ComplianceStatus = "non_compliant"
	ComplianceNotEvaluated ComplianceStatus = "not_evaluated"
)

// ComplianceRecord tracks which governance requirements an entity has
// satisfied. Requirements maps a requirement id to the list of criteria
// currently met for it; updates replace the list per requirement (last
// write wins) and are append-only across requirements.
type ComplianceRecord struct {
	ID           string              `json:"id"`
	EntityID     string              `json:"entity_id"`
	EntityType   string              `json:"entity_type"`
	Domain       string              `json:"domain"`
	Category     ComplianceCategory  `json:"category"`
	Requirements map[string][]string `json:"requirements"`
	Notes        map[string]string   `json:"notes,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Percentage computes the compliance percentage from the current requirement
// map: 100 * (requirements with at least one criterion met) / total.
// Always recomputed from current state, never cached.
func (r *ComplianceRecord) Percentage() float64 {
	if len(r.Requirements) == 0 {
		return 0
	}
	met := 0
	for _, criteria := range r.Requirements {
		if len(criteria) > 0 {
			met++
		}
	}
	return 100 * float64(met) / float64(len(r.Requirements))
}

// ComplianceState derives the record status from the requirement map.
func (r *ComplianceRecord) ComplianceState() ComplianceStatus {
	if len(r.Requirements) == 0 {
		return ComplianceNotEvaluated
	}
	switch p := r.Percentage(); {
	case p >= 100:
		return ComplianceCompliant
	case p > 0:
		return CompliancePartial
	default:
		return ComplianceNonCompliant
	}
}
