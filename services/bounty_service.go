// services/bounty_service.go
package services

import (
	"errors"
	"fmt"
	"log"

	"bounty-settlement-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

// foldCaser gives Unicode-correct case folding for tags and search terms.
var foldCaser = cases.Fold()

// BountyService owns the bounties table and its status transitions. Escrow
// moves are delegated to the ledger service inside the same transaction, so a
// bounty is never listed open without funds held and never cancelled without
// a refund.
type BountyService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewBountyService(db *gorm.DB, ledger *LedgerService) *BountyService {
	return &BountyService{DB: db, Ledger: ledger}
}

// CreateBountyInput carries everything a caller supplies when funding a bounty.
type CreateBountyInput struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Token       models.RewardToken
	Repository  string
	IssueNumber *int
	Tags        []string
}

// Create funds and lists a new bounty. The escrow account is opened first and
// the listing insert rides the same transaction (escrow-before-listing).
func (s *BountyService) Create(creator string, in CreateBountyInput) (*models.Bounty, error) {
	creator = models.NormalizeAddress(creator)
	if creator == "" {
		return nil, ErrAuthorization
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: bounty title is required", ErrValidation)
	}
	if !models.ValidToken(in.Token) {
		return nil, fmt.Errorf("%w: unsupported reward token %q", ErrValidation, in.Token)
	}

	bounty := &models.Bounty{
		ID:          uuid.NewString(),
		Slug:        slug.Make(in.Title),
		Title:       in.Title,
		Description: in.Description,
		Amount:      in.Amount,
		Token:       in.Token,
		Repository:  in.Repository,
		IssueNumber: in.IssueNumber,
		Status:      models.BountyStatusOpen,
		CreatedBy:   creator,
		Tags:        normalizeTags(in.Tags),
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := s.Ledger.OpenEscrow(tx, bounty.ID, in.Amount, in.Token); err != nil {
			return err
		}
		if err := tx.Create(bounty).Error; err != nil {
			return fmt.Errorf("failed to create bounty: %w", err)
		}
		return ensureIdentity(tx, creator)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Bounty %s listed: %s %s held in escrow", bounty.ID, in.Amount, in.Token)
	return bounty, nil
}

// Assign sets the contributor and moves open → active. The transition is
// guarded by the current status, so concurrent attempts resolve to exactly one
// winner; losers get ErrAlreadyAssigned and should re-fetch.
func (s *BountyService) Assign(bountyID, contributor string) (*models.Bounty, error) {
	contributor = models.NormalizeAddress(contributor)
	if contributor == "" {
		return nil, ErrAuthorization
	}

	var bounty models.Bounty
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bounty, "id = ?", bountyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBountyNotFound
			}
			return fmt.Errorf("failed to fetch bounty: %w", err)
		}
		switch bounty.Status {
		case models.BountyStatusOpen:
			// fall through to the guarded update below
		case models.BountyStatusActive, models.BountyStatusCompleted:
			return ErrAlreadyAssigned
		default:
			return ErrInvalidTransition
		}

		res := tx.Model(&models.Bounty{}).
			Where("id = ? AND status = ?", bountyID, models.BountyStatusOpen).
			Updates(map[string]interface{}{
				"status":      models.BountyStatusActive,
				"assigned_to": contributor,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to assign bounty: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// another contributor won the race between our read and write
			return ErrAlreadyAssigned
		}

		bounty.Status = models.BountyStatusActive
		bounty.AssignedTo = &contributor
		return ensureIdentity(tx, contributor)
	})
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

// Cancel refunds the creator and moves an open or active bounty to cancelled.
// Only the creator may cancel, and never once a submission has been approved.
func (s *BountyService) Cancel(bountyID, caller string) (*models.Bounty, error) {
	caller = models.NormalizeAddress(caller)

	var bounty models.Bounty
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&bounty, "id = ?", bountyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBountyNotFound
			}
			return fmt.Errorf("failed to fetch bounty: %w", err)
		}
		if bounty.CreatedBy != caller {
			return ErrAuthorization
		}
		if bounty.Status != models.BountyStatusOpen && bounty.Status != models.BountyStatusActive {
			return ErrInvalidTransition
		}

		var approvedCount int64
		if err := tx.Model(&models.Submission{}).
			Where("bounty_id = ? AND status = ?", bountyID, models.SubmissionStatusApproved).
			Count(&approvedCount).Error; err != nil {
			return fmt.Errorf("failed to check approved submissions: %w", err)
		}
		if approvedCount > 0 {
			return ErrInvalidTransition
		}

		if err := s.Ledger.Refund(tx, bountyID); err != nil {
			return err
		}

		res := tx.Model(&models.Bounty{}).
			Where("id = ? AND status = ?", bountyID, bounty.Status).
			Updates(map[string]interface{}{
				"status":      models.BountyStatusCancelled,
				"assigned_to": nil,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to cancel bounty: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}

		bounty.Status = models.BountyStatusCancelled
		bounty.AssignedTo = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("↩️ Bounty %s cancelled, escrow refunded to %s", bounty.ID, bounty.CreatedBy)
	return &bounty, nil
}

// Get returns a single bounty by id.
func (s *BountyService) Get(bountyID string) (*models.Bounty, error) {
	var bounty models.Bounty
	if err := s.DB.First(&bounty, "id = ?", bountyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBountyNotFound
		}
		return nil, fmt.Errorf("failed to fetch bounty: %w", err)
	}
	return &bounty, nil
}

// SortOption orders a bounty listing.
type SortOption string

const (
	SortNewest  SortOption = "newest"
	SortOldest  SortOption = "oldest"
	SortHighest SortOption = "highest"
	SortLowest  SortOption = "lowest"
)

// BountyFilter narrows a listing. Zero values mean "no filter".
type BountyFilter struct {
	Status models.BountyStatus
	Tag    string
	Search string
	Sort   SortOption
	Limit  int
}

// List is a snapshot read over the bounties table with the original product's
// filter and sort surface (status, tag, free text; newest/oldest/highest/lowest).
func (s *BountyService) List(f BountyFilter) ([]models.Bounty, error) {
	q := s.DB.Model(&models.Bounty{})

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Tag != "" {
		// tags are stored folded as a JSON array, so a quoted LIKE is exact
		q = q.Where("tags LIKE ?", "%\""+foldCaser.String(f.Tag)+"\"%")
	}
	if f.Search != "" {
		term := "%" + foldCaser.String(f.Search) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", term, term)
	}

	switch f.Sort {
	case SortOldest:
		q = q.Order("created_at ASC")
	case SortHighest:
		q = q.Order("amount DESC")
	case SortLowest:
		q = q.Order("amount ASC")
	default:
		q = q.Order("created_at DESC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []models.Bounty
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list bounties: %w", err)
	}
	return out, nil
}

// IdentitySummary is the per-wallet dashboard read model: bounty ids derived
// from the bounties table on every read, never duplicated as stored state.
type IdentitySummary struct {
	Address           string          `json:"address"`
	CreatedBounties   []models.Bounty `json:"created_bounties"`
	AssignedBounties  []models.Bounty `json:"assigned_bounties"`
	CompletedBounties []models.Bounty `json:"completed_bounties"`
}

// SummarizeIdentity computes the created/assigned/completed sets for a wallet.
func (s *BountyService) SummarizeIdentity(address string) (*IdentitySummary, error) {
	address = models.NormalizeAddress(address)
	out := &IdentitySummary{Address: address}

	if err := s.DB.Where("created_by = ?", address).
		Order("created_at DESC").Find(&out.CreatedBounties).Error; err != nil {
		return nil, fmt.Errorf("failed to list created bounties: %w", err)
	}
	if err := s.DB.Where("assigned_to = ? AND status = ?", address, models.BountyStatusActive).
		Order("created_at DESC").Find(&out.AssignedBounties).Error; err != nil {
		return nil, fmt.Errorf("failed to list assigned bounties: %w", err)
	}
	if err := s.DB.Where("assigned_to = ? AND status = ?", address, models.BountyStatusCompleted).
		Order("created_at DESC").Find(&out.CompletedBounties).Error; err != nil {
		return nil, fmt.Errorf("failed to list completed bounties: %w", err)
	}
	return out, nil
}

// ensureIdentity creates the identity row on first contact so the sync worker
// has an anchor to attach the linked source-control handle to.
func ensureIdentity(tx *gorm.DB, address string) error {
	var identity models.Identity
	err := tx.Where("address = ?", address).
		FirstOrCreate(&identity, models.Identity{Address: address}).Error
	if err != nil {
		return fmt.Errorf("failed to ensure identity %s: %w", address, err)
	}
	return nil
}

func normalizeTags(tags []string) models.TagList {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make(models.TagList, 0, len(tags))
	for _, t := range tags {
		t = foldCaser.String(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
