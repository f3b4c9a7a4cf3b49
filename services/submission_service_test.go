package services

import (
	"testing"
	"time"

	"bounty-settlement-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitTestPR(t *testing.T, svc *testServices, bountyID string) *models.Submission {
	t.Helper()
	sub, err := svc.Submissions.Submit(bountyID, contributorAddr, SubmitInput{
		Title: "Implemented dark mode for all components",
		PRUrl: "https://github.com/openbounty/ui-kit/pull/65",
	})
	require.NoError(t, err)
	return sub
}

func TestSubmitPolicy(t *testing.T) {
	svc := newTestServices(t)
	bounty := createTestBounty(t, svc, "1.2")

	t.Run("bounty must be active", func(t *testing.T) {
		_, err := svc.Submissions.Submit(bounty.ID, contributorAddr, SubmitInput{Title: "early"})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	_, err := svc.Bounties.Assign(bounty.ID, contributorAddr)
	require.NoError(t, err)

	t.Run("only the assignee may submit", func(t *testing.T) {
		_, err := svc.Submissions.Submit(bounty.ID, "0x9999999999999999999999999999999999999999", SubmitInput{Title: "poach"})
		assert.ErrorIs(t, err, ErrAuthorization)
	})

	sub := submitTestPR(t, svc, bounty.ID)
	assert.Equal(t, models.SubmissionStatusPending, sub.Status)
	assert.Equal(t, models.NormalizeAddress(contributorAddr), sub.SubmittedBy)

	t.Run("unknown bounty", func(t *testing.T) {
		_, err := svc.Submissions.Submit(uuid.NewString(), contributorAddr, SubmitInput{Title: "nope"})
		assert.ErrorIs(t, err, ErrBountyNotFound)
	})

	t.Run("cancelled bounty rejects submissions", func(t *testing.T) {
		_, err := svc.Bounties.Cancel(bounty.ID, creatorAddr)
		require.NoError(t, err)

		_, err = svc.Submissions.Submit(bounty.ID, contributorAddr, SubmitInput{Title: "late"})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

// The end-to-end happy path: fund 0.5 ETH, assign, submit, merge event.
func TestMergeEventSettlesBounty(t *testing.T) {
	svc := newTestServices(t)
	bounty := createTestBounty(t, svc, "0.5")

	acct, err := svc.Ledger.GetEscrow(bounty.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusHeld, acct.Status)

	_, err = svc.Bounties.Assign(bounty.ID, contributorAddr)
	require.NoError(t, err)
	sub := submitTestPR(t, svc, bounty.ID)

	mergedAt := time.Now().UTC()
	approved, err := svc.Submissions.ApproveFromMergeEvent(bounty.ID, sub.ID, "dev-charlie", mergedAt)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusApproved, approved.Status)
	require.NotNil(t, approved.MergedBy)
	assert.Equal(t, "dev-charlie", *approved.MergedBy)

	got, err := svc.Bounties.Get(bounty.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BountyStatusCompleted, got.Status)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, models.NormalizeAddress(contributorAddr), *got.AssignedTo)

	acct, err = svc.Ledger.GetEscrow(bounty.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, acct.Status)
	assert.True(t, acct.Amount.Equal(bounty.Amount))
	require.NotNil(t, acct.Recipient)
	assert.Equal(t, models.NormalizeAddress(contributorAddr), *acct.Recipient)

	var disbs []models.Disbursement
	require.NoError(t, svc.DB.Where("bounty_id = ?", bounty.ID).Find(&disbs).Error)
	require.Len(t, disbs, 1)
	assert.True(t, disbs[0].Amount.Equal(bounty.Amount))

	t.Run("replayed notification is a soft failure", func(t *testing.T) {
		_, err := svc.Submissions.ApproveFromMergeEvent(bounty.ID, sub.ID, "dev-charlie", mergedAt)
		assert.ErrorIs(t, err, ErrAlreadyReviewed)

		// still exactly one disbursement
		var count int64
		require.NoError(t, svc.DB.Model(&models.Disbursement{}).
			Where("bounty_id = ?", bounty.ID).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("completed bounties cannot be cancelled", func(t *testing.T) {
		_, err := svc.Bounties.Cancel(bounty.ID, creatorAddr)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestApproveRejectsPendingSiblings(t *testing.T) {
	svc := newTestServices(t)
	bounty := createTestBounty(t, svc, "0.8")
	_, err := svc.Bounties.Assign(bounty.ID, contributorAddr)
	require.NoError(t, err)

	s1 := submitTestPR(t, svc, bounty.ID)
	s2 := submitTestPR(t, svc, bounty.ID)

	_, err = svc.Submissions.ApproveFromMergeEvent(bounty.ID, s1.ID, "dev-bob", time.Now().UTC())
	require.NoError(t, err)

	got2, err := svc.Submissions.Get(s2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusRejected, got2.Status)
	assert.NotNil(t, got2.ReviewedAt)

	t.Run("second approve attempt fails with already reviewed", func(t *testing.T) {
		_, err := svc.Submissions.ApproveFromMergeEvent(bounty.ID, s2.ID, "dev-bob", time.Now().UTC())
		assert.ErrorIs(t, err, ErrAlreadyReviewed)
	})

	// at most one approved submission per bounty, ever
	var approvedCount int64
	require.NoError(t, svc.DB.Model(&models.Submission{}).
		Where("bounty_id = ? AND status = ?", bounty.ID, models.SubmissionStatusApproved).
		Count(&approvedCount).Error)
	assert.Equal(t, int64(1), approvedCount)
}

func TestManualReview(t *testing.T) {
	svc := newTestServices(t)
	bounty := createTestBounty(t, svc, "1")
	_, err := svc.Bounties.Assign(bounty.ID, contributorAddr)
	require.NoError(t, err)
	sub := submitTestPR(t, svc, bounty.ID)

	t.Run("only the creator may review", func(t *testing.T) {
		_, err := svc.Submissions.Review(sub.ID, OutcomeReject, contributorAddr)
		assert.ErrorIs(t, err, ErrAuthorization)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		_, err := svc.Submissions.Review(sub.ID, "merge", creatorAddr)
		assert.Error(t, err)
	})

	rejected, err := svc.Submissions.Review(sub.ID, OutcomeReject, creatorAddr)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusRejected, rejected.Status)

	// rejecting changes nothing else: bounty stays active, funds stay held
	got, err := svc.Bounties.Get(bounty.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BountyStatusActive, got.Status)
	acct, err := svc.Ledger.GetEscrow(bounty.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusHeld, acct.Status)

	t.Run("re-review fails", func(t *testing.T) {
		_, err := svc.Submissions.Review(sub.ID, OutcomeApprove, creatorAddr)
		assert.ErrorIs(t, err, ErrAlreadyReviewed)
	})
}

func TestCreatorApprovesMergeManually(t *testing.T) {
	svc := newTestServices(t)
	bounty := createTestBounty(t, svc, "1.5")
	_, err := svc.Bounties.Assign(bounty.ID, contributorAddr)
	require.NoError(t, err)
	sub := submitTestPR(t, svc, bounty.ID)

	approved, err := svc.Submissions.Review(sub.ID, OutcomeApprove, creatorAddr)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusApproved, approved.Status)

	got, err := svc.Bounties.Get(bounty.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BountyStatusCompleted, got.Status)
}

func TestMergeEventValidation(t *testing.T) {
	svc := newTestServices(t)
	bounty := createTestBounty(t, svc, "1")
	other := createTestBounty(t, svc, "1")
	_, err := svc.Bounties.Assign(bounty.ID, contributorAddr)
	require.NoError(t, err)
	sub := submitTestPR(t, svc, bounty.ID)

	t.Run("unknown submission", func(t *testing.T) {
		_, err := svc.Submissions.ApproveFromMergeEvent(bounty.ID, uuid.NewString(), "dev", time.Now().UTC())
		assert.ErrorIs(t, err, ErrSubmissionNotFound)
	})

	t.Run("submission must belong to the named bounty", func(t *testing.T) {
		_, err := svc.Submissions.ApproveFromMergeEvent(other.ID, sub.ID, "dev", time.Now().UTC())
		assert.ErrorIs(t, err, ErrSubmissionNotFound)

		// the mismatched event must not have settled anything
		got, err := svc.Submissions.Get(sub.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionStatusPending, got.Status)
	})
}
