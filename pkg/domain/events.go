package domain

import "time"

// Event topics published and consumed by the hub. Per-domain delivery uses
// InboundTopic(code).
const (
	TopicIntegrationMessage = "integration.message"
	TopicRouted             = "integration.routed"
	TopicRoutingFailed      = "integration.routed.failed"
	TopicReview             = "governance.review"
	TopicDomainRegister     = "domain.register"
)

// InboundTopic returns the per-domain delivery topic for code.
func InboundTopic(code string) string {
	return "domain." + code + ".inbound"
}

// IntegrationMessage is the payload expected on TopicIntegrationMessage.
// Payload is opaque to the hub; it is forwarded untouched on authorization.
type IntegrationMessage struct {
	Source  string         `json:"source"`
	Target  string         `json:"target"`
	Payload map[string]any `json:"payload"`
}

// RoutedResult is published on TopicRouted or TopicRoutingFailed to report
// the outcome of a routing attempt. Routing failures are data, not errors.
type RoutedResult struct {
	Source   string    `json:"source"`
	Target   string    `json:"target"`
	Routed   bool      `json:"routed"`
	Reason   string    `json:"reason,omitempty"`
	RoutedAt time.Time `json:"routed_at"`
}

// ReviewNotification is published on TopicReview for every review lifecycle
// transition.
type ReviewNotification struct {
	ReviewID   string       `json:"review_id"`
	SubjectRef string       `json:"subject_ref"`
	Type       ReviewType   `json:"type"`
	Status     ReviewStatus `json:"status"`
	Reviewer   string       `json:"reviewer,omitempty"`
}

// DomainRegistration is published on TopicDomainRegister when a domain is
// registered through the governance manager.
type DomainRegistration struct {
	Code         string   `json:"code"`
	Capabilities []string `json:"capabilities"`
	ComplianceID string   `json:"compliance_id"`
}
