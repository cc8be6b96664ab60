// Package review implements the approval workflow engine gating every
// integration request.
//
// State machine (initial state Pending):
//
//	Pending --AssignReviewers--> Pending
//	Pending --Start--> InReview
//	InReview --Approve--> Approved                  [terminal]
//	InReview --Reject--> Rejected                   [terminal]
//	InReview --RequestChanges--> RequiresChanges
//	RequiresChanges --Resubmit--> InReview
//	Pending|InReview|RequiresChanges --Cancel--> Cancelled [terminal]
//
// Terminal transitions are idempotent against duplicate delivery: a
// redundant Approve on an already-Approved review is a no-op success.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polisai/govhub/pkg/domain"
	"github.com/polisai/govhub/pkg/eventbus"
	"github.com/polisai/govhub/pkg/idgen"
	"github.com/polisai/govhub/pkg/telemetry"
)

// Metrics reports review counts per status. Computed by full scan on every
// call; not cached, to avoid staleness at the expected cardinality.
type Metrics struct {
	Total    int                         `json:"total"`
	ByStatus map[domain.ReviewStatus]int `json:"by_status"`
}

// Pipeline owns all Review records.
type Pipeline struct {
	mu      sync.Mutex
	reviews map[string]*domain.Review
	seq     *idgen.Sequence
	bus     *eventbus.Bus
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBus enables governance.review lifecycle notifications.
func WithBus(bus *eventbus.Bus) Option {
	return func(p *Pipeline) { p.bus = bus }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics enables transition counters.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = metrics }
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		reviews: make(map[string]*domain.Review),
		seq:     idgen.NewSequence("REV"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create opens a review in Pending with no reviewers assigned.
func (p *Pipeline) Create(typ domain.ReviewType, subjectRef string, priority domain.Priority) (string, error) {
	if !domain.ValidPriority(priority) {
		return "", fmt.Errorf("create review: invalid priority %q", priority)
	}

	now := time.Now()
	rev := &domain.Review{
		ID:         p.seq.Next(),
		Type:       typ,
		SubjectRef: subjectRef,
		Status:     domain.ReviewPending,
		Priority:   priority,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	p.mu.Lock()
	p.reviews[rev.ID] = rev
	p.mu.Unlock()

	p.logger.Info("Review created", "review_id", rev.ID, "type", typ, "subject", subjectRef, "priority", priority)
	p.notify(*rev, "")
	return rev.ID, nil
}

// AssignReviewers adds reviewers to a Pending or InReview review. The
// reviewer set only grows; assignment alone never changes the status.
func (p *Pipeline) AssignReviewers(reviewID string, reviewers ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rev, err := p.get(reviewID)
	if err != nil {
		return err
	}
	if rev.Status.Terminal() {
		return fmt.Errorf("assign reviewers %s: review is %s", reviewID, rev.Status)
	}

	for _, reviewer := range reviewers {
		if reviewer == "" || contains(rev.Reviewers, reviewer) {
			continue
		}
		rev.Reviewers = append(rev.Reviewers, reviewer)
	}
	rev.UpdatedAt = time.Now()
	return nil
}

// Start moves a Pending review to InReview. At least one reviewer must be
// assigned first.
func (p *Pipeline) Start(reviewID string) error {
	rev, err := p.transition(reviewID, func(rev *domain.Review) error {
		if rev.Status != domain.ReviewPending {
			return fmt.Errorf("start review %s: status is %s, want %s", reviewID, rev.Status, domain.ReviewPending)
		}
		if len(rev.Reviewers) == 0 {
			return fmt.Errorf("start review %s: %w", reviewID, domain.ErrNoReviewers)
		}
		rev.Status = domain.ReviewInReview
		return nil
	})
	if err != nil {
		return err
	}
	p.notify(rev, "")
	return nil
}

// Approve moves an InReview review to Approved. One approval is sufficient;
// multi-reviewer unanimity is a policy extension, not part of this contract.
// Approving an already-Approved review is a no-op success.
func (p *Pipeline) Approve(reviewID, reviewer, notes string) error {
	var already bool
	rev, err := p.transition(reviewID, func(rev *domain.Review) error {
		if rev.Status == domain.ReviewApproved {
			already = true
			return nil
		}
		if rev.Status != domain.ReviewInReview {
			return fmt.Errorf("approve review %s (status %s): %w", reviewID, rev.Status, domain.ErrNotInReview)
		}
		rev.Status = domain.ReviewApproved
		appendComment(rev, reviewer, notes)
		return nil
	})
	if err != nil || already {
		return err
	}
	p.logger.Info("Review approved", "review_id", reviewID, "reviewer", reviewer)
	p.notify(rev, reviewer)
	return nil
}

// Reject moves an InReview review to Rejected. Rejecting an already-Rejected
// review is a no-op success.
func (p *Pipeline) Reject(reviewID, reviewer, reason string) error {
	var already bool
	rev, err := p.transition(reviewID, func(rev *domain.Review) error {
		if rev.Status == domain.ReviewRejected {
			already = true
			return nil
		}
		if rev.Status != domain.ReviewInReview {
			return fmt.Errorf("reject review %s (status %s): %w", reviewID, rev.Status, domain.ErrNotInReview)
		}
		rev.Status = domain.ReviewRejected
		appendComment(rev, reviewer, reason)
		return nil
	})
	if err != nil || already {
		return err
	}
	p.logger.Info("Review rejected", "review_id", reviewID, "reviewer", reviewer, "reason", reason)
	p.notify(rev, reviewer)
	return nil
}

// RequestChanges moves an InReview review to RequiresChanges.
func (p *Pipeline) RequestChanges(reviewID, reviewer, changes string) error {
	rev, err := p.transition(reviewID, func(rev *domain.Review) error {
		if rev.Status != domain.ReviewInReview {
			return fmt.Errorf("request changes %s (status %s): %w", reviewID, rev.Status, domain.ErrNotInReview)
		}
		rev.Status = domain.ReviewRequiresChanges
		appendComment(rev, reviewer, changes)
		return nil
	})
	if err != nil {
		return err
	}
	p.notify(rev, reviewer)
	return nil
}

// Resubmit moves a RequiresChanges review back to InReview.
func (p *Pipeline) Resubmit(reviewID string) error {
	rev, err := p.transition(reviewID, func(rev *domain.Review) error {
		if rev.Status != domain.ReviewRequiresChanges {
			return fmt.Errorf("resubmit review %s: status is %s, want %s", reviewID, rev.Status, domain.ReviewRequiresChanges)
		}
		rev.Status = domain.ReviewInReview
		return nil
	})
	if err != nil {
		return err
	}
	p.notify(rev, "")
	return nil
}

// Cancel terminates a non-terminal review. Cancelling an already-Cancelled
// review is a no-op success.
func (p *Pipeline) Cancel(reviewID, reviewer, reason string) error {
	var already bool
	rev, err := p.transition(reviewID, func(rev *domain.Review) error {
		if rev.Status == domain.ReviewCancelled {
			already = true
			return nil
		}
		if rev.Status.Terminal() {
			return fmt.Errorf("cancel review %s: review is %s", reviewID, rev.Status)
		}
		rev.Status = domain.ReviewCancelled
		appendComment(rev, reviewer, reason)
		return nil
	})
	if err != nil || already {
		return err
	}
	p.notify(rev, reviewer)
	return nil
}

// Comment appends to the review's audit trail. Comments are accepted in
// every state, including terminal ones.
func (p *Pipeline) Comment(reviewID, reviewer, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rev, err := p.get(reviewID)
	if err != nil {
		return err
	}
	rev.Comments = append(rev.Comments, domain.ReviewComment{
		Reviewer:  reviewer,
		Text:      text,
		Timestamp: time.Now(),
	})
	rev.UpdatedAt = time.Now()
	return nil
}

// Review returns a copy of the review with the given id.
func (p *Pipeline) Review(reviewID string) (domain.Review, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rev, err := p.get(reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return copyReview(rev), nil
}

// Metrics counts reviews per status by full scan.
func (p *Pipeline) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := Metrics{ByStatus: make(map[domain.ReviewStatus]int)}
	for _, rev := range p.reviews {
		m.Total++
		m.ByStatus[rev.Status]++
	}
	return m
}

// Export returns deep copies of all reviews for persistence.
func (p *Pipeline) Export() []domain.Review {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Review, 0, len(p.reviews))
	for _, rev := range p.reviews {
		out = append(out, copyReview(rev))
	}
	return out
}

// Restore replaces the pipeline state from a persisted snapshot and advances
// the id sequence past the highest restored id so ids are never reused.
func (p *Pipeline) Restore(reviews []domain.Review) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reviews = make(map[string]*domain.Review, len(reviews))
	var max uint64
	for i := range reviews {
		rev := copyReview(&reviews[i])
		p.reviews[rev.ID] = &rev
		if n, ok := idgen.Parse("REV", rev.ID); ok && n > max {
			max = n
		}
	}
	p.seq.Restore(max)
}

// transition applies fn to the review under the lock and returns a copy for
// notification outside the lock.
func (p *Pipeline) transition(reviewID string, fn func(*domain.Review) error) (domain.Review, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rev, err := p.get(reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if err := fn(rev); err != nil {
		return domain.Review{}, err
	}
	rev.UpdatedAt = time.Now()
	return copyReview(rev), nil
}

func (p *Pipeline) get(reviewID string) (*domain.Review, error) {
	rev, exists := p.reviews[reviewID]
	if !exists {
		return nil, fmt.Errorf("review %q: %w", reviewID, domain.ErrUnknownReview)
	}
	return rev, nil
}

func (p *Pipeline) notify(rev domain.Review, reviewer string) {
	if p.metrics != nil {
		p.metrics.RecordReviewTransition(string(rev.Status))
	}
	telemetry.RecordReviewEvent(context.Background(), string(rev.Type), string(rev.Status))

	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(domain.TopicReview, domain.ReviewNotification{
		ReviewID:   rev.ID,
		SubjectRef: rev.SubjectRef,
		Type:       rev.Type,
		Status:     rev.Status,
		Reviewer:   reviewer,
	}); err != nil {
		p.logger.Warn("Review notification failed", "review_id", rev.ID, "error", err)
	}
}

func appendComment(rev *domain.Review, reviewer, text string) {
	if text == "" {
		return
	}
	rev.Comments = append(rev.Comments, domain.ReviewComment{
		Reviewer:  reviewer,
		Text:      text,
		Timestamp: time.Now(),
	})
}

func copyReview(rev *domain.Review) domain.Review {
	out := *rev
	out.Reviewers = append([]string(nil), rev.Reviewers...)
	out.Comments = append([]domain.ReviewComment(nil), rev.Comments...)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
