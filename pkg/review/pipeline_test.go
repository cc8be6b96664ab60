package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/govhub/pkg/domain"
)

func newStartedReview(t *testing.T, p *Pipeline) string {
	t.Helper()
	id, err := p.Create(domain.ReviewIntegration, "INT-000001", domain.PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, p.AssignReviewers(id, "r1"))
	require.NoError(t, p.Start(id))
	return id
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	p := New()

	id1, err := p.Create(domain.ReviewIntegration, "INT-000001", domain.PriorityHigh)
	require.NoError(t, err)
	id2, err := p.Create(domain.ReviewSecurity, "INT-000002", domain.PriorityLow)
	require.NoError(t, err)

	assert.Equal(t, "REV-000001", id1)
	assert.Equal(t, "REV-000002", id2)
}

func TestCreateInvalidPriority(t *testing.T) {
	p := New()
	_, err := p.Create(domain.ReviewIntegration, "x", "urgent")
	assert.Error(t, err)
}

func TestStartRequiresReviewers(t *testing.T) {
	p := New()
	id, err := p.Create(domain.ReviewIntegration, "x", domain.PriorityNormal)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Start(id), domain.ErrNoReviewers)

	require.NoError(t, p.AssignReviewers(id, "r1"))
	assert.NoError(t, p.Start(id))

	rev, _ := p.Review(id)
	assert.Equal(t, domain.ReviewInReview, rev.Status)
}

func TestAssignReviewersStaysPending(t *testing.T) {
	p := New()
	id, _ := p.Create(domain.ReviewIntegration, "x", domain.PriorityNormal)

	require.NoError(t, p.AssignReviewers(id, "r1", "r2"))
	require.NoError(t, p.AssignReviewers(id, "r2", "r3", ""))

	rev, _ := p.Review(id)
	assert.Equal(t, domain.ReviewPending, rev.Status)
	assert.Equal(t, []string{"r1", "r2", "r3"}, rev.Reviewers)
}

func TestApproveRequiresInReview(t *testing.T) {
	p := New()
	id, _ := p.Create(domain.ReviewIntegration, "x", domain.PriorityNormal)

	assert.ErrorIs(t, p.Approve(id, "r1", "lgtm"), domain.ErrNotInReview)
	assert.ErrorIs(t, p.Reject(id, "r1", "no"), domain.ErrNotInReview)
	assert.ErrorIs(t, p.RequestChanges(id, "r1", "fix"), domain.ErrNotInReview)
}

func TestApproveIsIdempotent(t *testing.T) {
	p := New()
	id := newStartedReview(t, p)

	require.NoError(t, p.Approve(id, "r1", "lgtm"))
	// Redundant approval on an Approved review is a no-op success.
	require.NoError(t, p.Approve(id, "r2", "also fine"))

	rev, _ := p.Review(id)
	assert.Equal(t, domain.ReviewApproved, rev.Status)
	assert.Len(t, rev.Comments, 1)
}

func TestRejectTerminal(t *testing.T) {
	p := New()
	id := newStartedReview(t, p)

	require.NoError(t, p.Reject(id, "r1", "not compliant"))
	require.NoError(t, p.Reject(id, "r1", "again"))
	assert.ErrorIs(t, p.Approve(id, "r1", "too late"), domain.ErrNotInReview)

	rev, _ := p.Review(id)
	assert.Equal(t, domain.ReviewRejected, rev.Status)
}

func TestRequestChangesResubmitCycle(t *testing.T) {
	p := New()
	id := newStartedReview(t, p)

	require.NoError(t, p.RequestChanges(id, "r1", "add throttling"))
	rev, _ := p.Review(id)
	assert.Equal(t, domain.ReviewRequiresChanges, rev.Status)

	// Approve is invalid while changes are pending.
	assert.ErrorIs(t, p.Approve(id, "r1", ""), domain.ErrNotInReview)

	require.NoError(t, p.Resubmit(id))
	require.NoError(t, p.Approve(id, "r1", "done"))

	rev, _ = p.Review(id)
	assert.Equal(t, domain.ReviewApproved, rev.Status)
}

func TestCancelFromEveryNonTerminalState(t *testing.T) {
	p := New()

	pending, _ := p.Create(domain.ReviewIntegration, "a", domain.PriorityNormal)
	require.NoError(t, p.Cancel(pending, "admin", "withdrawn"))

	inReview := newStartedReview(t, p)
	require.NoError(t, p.Cancel(inReview, "admin", "withdrawn"))

	changes := newStartedReview(t, p)
	require.NoError(t, p.RequestChanges(changes, "r1", "fix"))
	require.NoError(t, p.Cancel(changes, "admin", "withdrawn"))

	approved := newStartedReview(t, p)
	require.NoError(t, p.Approve(approved, "r1", ""))
	assert.Error(t, p.Cancel(approved, "admin", "nope"))
}

func TestCommentsAppendOnTerminalReviews(t *testing.T) {
	p := New()
	id := newStartedReview(t, p)
	require.NoError(t, p.Approve(id, "r1", "lgtm"))

	require.NoError(t, p.Comment(id, "auditor", "post-approval note"))

	rev, _ := p.Review(id)
	require.Len(t, rev.Comments, 2)
	assert.Equal(t, "auditor", rev.Comments[1].Reviewer)
}

func TestMetricsFullScan(t *testing.T) {
	p := New()

	_, _ = p.Create(domain.ReviewIntegration, "a", domain.PriorityNormal)
	approved := newStartedReview(t, p)
	require.NoError(t, p.Approve(approved, "r1", ""))
	rejected := newStartedReview(t, p)
	require.NoError(t, p.Reject(rejected, "r1", "no"))

	m := p.Metrics()
	assert.Equal(t, 3, m.Total)
	assert.Equal(t, 1, m.ByStatus[domain.ReviewPending])
	assert.Equal(t, 1, m.ByStatus[domain.ReviewApproved])
	assert.Equal(t, 1, m.ByStatus[domain.ReviewRejected])
}

func TestUnknownReview(t *testing.T) {
	p := New()
	assert.ErrorIs(t, p.Start("REV-999999"), domain.ErrUnknownReview)
	_, err := p.Review("REV-999999")
	assert.ErrorIs(t, err, domain.ErrUnknownReview)
}

func TestRestoreAdvancesSequence(t *testing.T) {
	p := New()
	id := newStartedReview(t, p)
	require.NoError(t, p.Approve(id, "r1", ""))

	restored := New()
	restored.Restore(p.Export())

	rev, err := restored.Review(id)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewApproved, rev.Status)

	// New ids continue after the restored ones; REV-000001 is never reused.
	next, err := restored.Create(domain.ReviewIntegration, "b", domain.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, "REV-000002", next)
}
