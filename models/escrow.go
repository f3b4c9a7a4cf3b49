package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscrowStatus is the release state of funds held for a bounty.
// A held account reaches exactly one of released or refunded, once.
type EscrowStatus string

const (
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
)

// EscrowAccount holds a bounty's funds between creation and settlement.
// 1:1 with Bounty; the held amount equals the bounty's reward amount for the
// lifetime of the held state. Only the ledger service mutates these rows.
type EscrowAccount struct {
	BountyID   string          `gorm:"primaryKey;type:uuid" json:"bounty_id"`
	Amount     decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"amount"`
	Token      RewardToken     `gorm:"type:varchar(16);not null" json:"token"`
	Status     EscrowStatus    `gorm:"type:varchar(16);not null;index" json:"status"`
	Recipient  *string         `gorm:"type:varchar(64)" json:"recipient,omitempty"`
	ReleasedAt *time.Time      `json:"released_at,omitempty"`
	RefundedAt *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// Disbursement is the outbound record of a single escrow release, written in
// the same transaction as the release itself and later dispatched to the
// accounting service.
type Disbursement struct {
	ID           string          `gorm:"primaryKey;type:uuid" json:"id"`
	BountyID     string          `gorm:"type:uuid;not null;index" json:"bounty_id"`
	Recipient    string          `gorm:"type:varchar(64);not null" json:"recipient"`
	Amount       decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"amount"`
	Token        RewardToken     `gorm:"type:varchar(16);not null" json:"token"`
	ReleasedAt   time.Time       `gorm:"not null" json:"released_at"`
	Dispatched   bool            `gorm:"not null;default:false;index" json:"dispatched"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime"`
}
