// services/ledger_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"bounty-settlement-system/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService owns the escrow_accounts and disbursements tables. It is the
// only component that moves an escrow account between held, released and
// refunded, and every move happens inside the caller's transaction.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// forUpdate takes a row lock on dialects that support SELECT ... FOR UPDATE.
// The in-memory test dialect serializes writes on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// OpenEscrow creates a held escrow account for a bounty inside tx. Exactly one
// account may exist per bounty.
func (s *LedgerService) OpenEscrow(tx *gorm.DB, bountyID string, amount decimal.Decimal, token models.RewardToken) (*models.EscrowAccount, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	var existing models.EscrowAccount
	err := tx.First(&existing, "bounty_id = ?", bountyID).Error
	if err == nil {
		return nil, ErrDuplicateEscrow
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing escrow: %w", err)
	}

	acct := &models.EscrowAccount{
		BountyID: bountyID,
		Amount:   amount,
		Token:    token,
		Status:   models.EscrowStatusHeld,
	}
	if err := tx.Create(acct).Error; err != nil {
		return nil, fmt.Errorf("failed to open escrow: %w", err)
	}
	return acct, nil
}

// Release moves a held account to released and records the disbursement, all
// inside tx. The transition is guarded by the current status, so a retried
// release observes the already-released account and fails with ErrEscrowNotHeld
// instead of paying twice.
func (s *LedgerService) Release(tx *gorm.DB, bountyID, recipient string) (*models.Disbursement, error) {
	recipient = models.NormalizeAddress(recipient)

	var acct models.EscrowAccount
	if err := forUpdate(tx).First(&acct, "bounty_id = ?", bountyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEscrowNotHeld
		}
		return nil, fmt.Errorf("failed to fetch escrow: %w", err)
	}
	if acct.Status != models.EscrowStatusHeld {
		return nil, ErrEscrowNotHeld
	}

	now := time.Now().UTC()
	res := tx.Model(&models.EscrowAccount{}).
		Where("bounty_id = ? AND status = ?", bountyID, models.EscrowStatusHeld).
		Updates(map[string]interface{}{
			"status":      models.EscrowStatusReleased,
			"recipient":   recipient,
			"released_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to release escrow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrEscrowNotHeld
	}

	disb := &models.Disbursement{
		ID:         uuid.NewString(),
		BountyID:   bountyID,
		Recipient:  recipient,
		Amount:     acct.Amount,
		Token:      acct.Token,
		ReleasedAt: now,
	}
	if err := tx.Create(disb).Error; err != nil {
		return nil, fmt.Errorf("failed to record disbursement: %w", err)
	}
	return disb, nil
}

// Refund moves a held account to refunded, returning the funds to the bounty
// creator. Same not-held guard as Release.
func (s *LedgerService) Refund(tx *gorm.DB, bountyID string) error {
	var acct models.EscrowAccount
	if err := forUpdate(tx).First(&acct, "bounty_id = ?", bountyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEscrowNotHeld
		}
		return fmt.Errorf("failed to fetch escrow: %w", err)
	}
	if acct.Status != models.EscrowStatusHeld {
		return ErrEscrowNotHeld
	}

	res := tx.Model(&models.EscrowAccount{}).
		Where("bounty_id = ? AND status = ?", bountyID, models.EscrowStatusHeld).
		Updates(map[string]interface{}{
			"status":      models.EscrowStatusRefunded,
			"refunded_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to refund escrow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrEscrowNotHeld
	}
	return nil
}

// GetEscrow returns the escrow account for a bounty (read model).
func (s *LedgerService) GetEscrow(bountyID string) (*models.EscrowAccount, error) {
	var acct models.EscrowAccount
	if err := s.DB.First(&acct, "bounty_id = ?", bountyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEscrowNotHeld
		}
		return nil, fmt.Errorf("failed to fetch escrow: %w", err)
	}
	return &acct, nil
}

// PendingDisbursements lists disbursement records not yet delivered to the
// accounting service, oldest first.
func (s *LedgerService) PendingDisbursements(limit int) ([]models.Disbursement, error) {
	var out []models.Disbursement
	q := s.DB.Where("dispatched = ?", false).Order("released_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending disbursements: %w", err)
	}
	return out, nil
}

// MarkDispatched flags a disbursement as delivered.
func (s *LedgerService) MarkDispatched(id string) error {
	return s.DB.Model(&models.Disbursement{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"dispatched":    true,
			"dispatched_at": time.Now().UTC(),
		}).Error
}

// DisbursementsSince returns disbursements released at or after the cutoff,
// used by the daily ledger export.
func (s *LedgerService) DisbursementsSince(since time.Time) ([]models.Disbursement, error) {
	var out []models.Disbursement
	if err := s.DB.Where("released_at >= ?", since.UTC()).Order("released_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list disbursements: %w", err)
	}
	return out, nil
}
