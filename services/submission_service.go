// services/submission_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"bounty-settlement-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionService owns the submissions table and its review outcomes.
// Approval hands off to the settlement service inside the same transaction.
type SubmissionService struct {
	DB         *gorm.DB
	Settlement *SettlementService
}

func NewSubmissionService(db *gorm.DB, settlement *SettlementService) *SubmissionService {
	return &SubmissionService{DB: db, Settlement: settlement}
}

// SubmitInput carries the contributor-supplied fields of a new submission.
type SubmitInput struct {
	Title       string
	Description string
	PRUrl       string
}

// Submit registers a pending submission against an active bounty. Only the
// current assignee may submit.
func (s *SubmissionService) Submit(bountyID, submitter string, in SubmitInput) (*models.Submission, error) {
	submitter = models.NormalizeAddress(submitter)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: submission title is required", ErrValidation)
	}

	sub := &models.Submission{
		ID:          uuid.NewString(),
		BountyID:    bountyID,
		Title:       in.Title,
		Description: in.Description,
		Status:      models.SubmissionStatusPending,
		SubmittedBy: submitter,
		PRUrl:       in.PRUrl,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Lock the bounty so a concurrent cancel cannot slip in between the
		// status check and the insert.
		var bounty models.Bounty
		if err := forUpdate(tx).First(&bounty, "id = ?", bountyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBountyNotFound
			}
			return fmt.Errorf("failed to fetch bounty: %w", err)
		}
		if bounty.Status != models.BountyStatusActive {
			return ErrInvalidTransition
		}
		if bounty.AssignedTo == nil || *bounty.AssignedTo != submitter {
			return ErrAuthorization
		}
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("failed to create submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ReviewOutcome is a review decision on a pending submission.
type ReviewOutcome string

const (
	OutcomeApprove ReviewOutcome = "approve"
	OutcomeReject  ReviewOutcome = "reject"
)

// Review applies a manual review decision. reviewedBy must be the bounty
// creator; the trusted gateway path goes through ApproveFromMergeEvent instead.
// Approving settles the bounty in the same transaction; rejecting only flips
// this submission.
func (s *SubmissionService) Review(submissionID string, outcome ReviewOutcome, reviewedBy string) (*models.Submission, error) {
	if outcome != OutcomeApprove && outcome != OutcomeReject {
		return nil, fmt.Errorf("%w: unknown review outcome %q", ErrValidation, outcome)
	}
	reviewedBy = models.NormalizeAddress(reviewedBy)

	var sub models.Submission
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&sub, "id = ?", submissionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return fmt.Errorf("failed to fetch submission: %w", err)
		}

		var bounty models.Bounty
		if err := tx.First(&bounty, "id = ?", sub.BountyID).Error; err != nil {
			return fmt.Errorf("failed to fetch bounty for submission: %w", err)
		}
		if bounty.CreatedBy != reviewedBy {
			return ErrAuthorization
		}

		if sub.Status != models.SubmissionStatusPending {
			return ErrAlreadyReviewed
		}

		if outcome == OutcomeReject {
			return s.rejectInTx(tx, &sub)
		}
		return s.approveInTx(tx, &sub)
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ApproveFromMergeEvent is the gateway entry point: an authenticated merge
// notification names a bounty and a submission. The submission must exist,
// be pending and belong to the named bounty. A replayed notification finds a
// non-pending submission and fails softly with ErrAlreadyReviewed.
func (s *SubmissionService) ApproveFromMergeEvent(bountyID, submissionID, mergedBy string, mergedAt time.Time) (*models.Submission, error) {
	var sub models.Submission
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&sub, "id = ?", submissionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return fmt.Errorf("failed to fetch submission: %w", err)
		}
		if sub.BountyID != bountyID {
			return ErrSubmissionNotFound
		}
		if sub.Status != models.SubmissionStatusPending {
			return ErrAlreadyReviewed
		}

		if err := tx.Model(&sub).Updates(map[string]interface{}{
			"merged_by": mergedBy,
			"merged_at": mergedAt.UTC(),
		}).Error; err != nil {
			return fmt.Errorf("failed to record merge metadata: %w", err)
		}
		mergedAtUTC := mergedAt.UTC()
		sub.MergedBy = &mergedBy
		sub.MergedAt = &mergedAtUTC

		return s.approveInTx(tx, &sub)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🔀 Merge event settled submission %s (bounty %s, merged by %s)", sub.ID, bountyID, mergedBy)
	return &sub, nil
}

// approveInTx marks sub approved, rejects its pending siblings and settles the
// owning bounty — one transaction, caller-supplied.
func (s *SubmissionService) approveInTx(tx *gorm.DB, sub *models.Submission) error {
	now := time.Now().UTC()

	if err := tx.Model(&models.Submission{}).
		Where("bounty_id = ? AND id <> ? AND status = ?",
			sub.BountyID, sub.ID, models.SubmissionStatusPending).
		Updates(map[string]interface{}{
			"status":      models.SubmissionStatusRejected,
			"reviewed_at": now,
		}).Error; err != nil {
		return fmt.Errorf("failed to reject sibling submissions: %w", err)
	}

	res := tx.Model(&models.Submission{}).
		Where("id = ? AND status = ?", sub.ID, models.SubmissionStatusPending).
		Updates(map[string]interface{}{
			"status":      models.SubmissionStatusApproved,
			"reviewed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to approve submission: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyReviewed
	}
	sub.Status = models.SubmissionStatusApproved
	sub.ReviewedAt = &now

	var bounty models.Bounty
	return s.Settlement.completeInTx(tx, sub.BountyID, &bounty)
}

func (s *SubmissionService) rejectInTx(tx *gorm.DB, sub *models.Submission) error {
	now := time.Now().UTC()
	res := tx.Model(&models.Submission{}).
		Where("id = ? AND status = ?", sub.ID, models.SubmissionStatusPending).
		Updates(map[string]interface{}{
			"status":      models.SubmissionStatusRejected,
			"reviewed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to reject submission: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyReviewed
	}
	sub.Status = models.SubmissionStatusRejected
	sub.ReviewedAt = &now
	return nil
}

// ListByBounty returns all submissions for a bounty, newest first (read model).
func (s *SubmissionService) ListByBounty(bountyID string) ([]models.Submission, error) {
	var out []models.Submission
	if err := s.DB.Where("bounty_id = ?", bountyID).
		Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return out, nil
}

// Get returns a single submission by id.
func (s *SubmissionService) Get(submissionID string) (*models.Submission, error) {
	var sub models.Submission
	if err := s.DB.First(&sub, "id = ?", submissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to fetch submission: %w", err)
	}
	return &sub, nil
}
