package models

import "time"

// SubmissionStatus is the review state of a submitted solution.
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// Submission is a claimed solution to a bounty (a pull request on the external
// source-control side). A bounty has at most one approved submission; approving
// one rejects every other pending sibling in the same write.
type Submission struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	BountyID    string           `gorm:"type:uuid;not null;index" json:"bounty_id"`
	Title       string           `gorm:"not null" json:"title"`
	Description string           `gorm:"type:text" json:"description"`
	Status      SubmissionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	SubmittedBy string           `gorm:"type:varchar(64);not null;index" json:"submitted_by"`
	PRUrl       string           `gorm:"type:text" json:"pr_url"`
	ReviewedAt  *time.Time       `json:"reviewed_at,omitempty"`
	MergedBy    *string          `json:"merged_by,omitempty"` // source-control account from the merge event
	MergedAt    *time.Time       `json:"merged_at,omitempty"`
	CreatedAt   time.Time        `json:"submitted_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}
