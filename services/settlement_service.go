// services/settlement_service.go
package services

import (
	"errors"
	"fmt"
	"log"

	"bounty-settlement-system/models"

	"gorm.io/gorm"
)

// SettlementService pairs the escrow release with the bounty's terminal
// transition inside one transaction. A concurrent reader sees either
// "active, funds held" or "completed, funds released" — never a split state.
// If the release fails the whole transaction rolls back.
type SettlementService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewSettlementService(db *gorm.DB, ledger *LedgerService) *SettlementService {
	return &SettlementService{DB: db, Ledger: ledger}
}

// Complete settles a bounty: verifies it is active with an approved submission
// by the current assignee, releases the escrow to them and commits the
// active → completed transition.
func (s *SettlementService) Complete(bountyID string) (*models.Bounty, error) {
	var bounty models.Bounty
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		return s.completeInTx(tx, bountyID, &bounty)
	})
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

// completeInTx runs the settlement sequence inside an existing transaction so
// the submission approval that triggers it commits or rolls back as one unit.
func (s *SettlementService) completeInTx(tx *gorm.DB, bountyID string, out *models.Bounty) error {
	if err := forUpdate(tx).First(out, "id = ?", bountyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBountyNotFound
		}
		return fmt.Errorf("failed to fetch bounty: %w", err)
	}
	if out.Status != models.BountyStatusActive || out.AssignedTo == nil {
		return ErrInvalidTransition
	}
	assignee := *out.AssignedTo

	var approved models.Submission
	err := tx.First(&approved,
		"bounty_id = ? AND status = ? AND submitted_by = ?",
		bountyID, models.SubmissionStatusApproved, assignee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// no approved submission by the assignee — nothing to pay out for
			return ErrInvalidTransition
		}
		return fmt.Errorf("failed to fetch approved submission: %w", err)
	}

	disb, err := s.Ledger.Release(tx, bountyID, assignee)
	if err != nil {
		return err
	}

	res := tx.Model(&models.Bounty{}).
		Where("id = ? AND status = ?", bountyID, models.BountyStatusActive).
		Update("status", models.BountyStatusCompleted)
	if res.Error != nil {
		return fmt.Errorf("failed to complete bounty: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	out.Status = models.BountyStatusCompleted

	log.Printf("💸 Bounty %s settled: %s %s released to %s", bountyID, disb.Amount, disb.Token, disb.Recipient)
	return nil
}
