package domain

import "errors"

// Common domain errors
var (
	ErrDuplicateDomain     = errors.New("domain already registered")
	ErrUnknownDomain       = errors.New("domain not registered")
	ErrSelfIntegration     = errors.New("integration source and target are the same domain")
	ErrDuplicateEdge       = errors.New("integration edge already exists")
	ErrUnknownEdge         = errors.New("integration edge not found")
	ErrNotInReview         = errors.New("review is not in review")
	ErrReviewNotApproved   = errors.New("review is not approved")
	ErrNoReviewers         = errors.New("review has no assigned reviewers")
	ErrUnknownReview       = errors.New("review not found")
	ErrDuplicateRecord     = errors.New("compliance record already exists")
	ErrUnknownRecord       = errors.New("compliance record not found")
	ErrUnknownIntegration  = errors.New("integration not found")
	ErrRoutingUnauthorized = errors.New("no active integration path between domains")
	ErrInvalidTopic        = errors.New("invalid topic")
	ErrPolicyDenied        = errors.New("request denied by governance policy")
)

// GovernanceError wraps a domain error with additional context for callers
// that need a stable machine-readable code alongside the sentinel.
type GovernanceError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *GovernanceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *GovernanceError) Unwrap() error {
	return e.Err
}
