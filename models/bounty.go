package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BountyStatus tracks the lifecycle of a bounty listing.
// Legal transitions: open → active → completed, open/active → cancelled.
type BountyStatus string

const (
	BountyStatusOpen      BountyStatus = "open"
	BountyStatusActive    BountyStatus = "active"
	BountyStatusCompleted BountyStatus = "completed"
	BountyStatusCancelled BountyStatus = "cancelled"
)

// RewardToken is the currency a bounty pays out in.
type RewardToken string

const (
	TokenETH  RewardToken = "ETH"
	TokenUSDC RewardToken = "USDC"
	TokenDAI  RewardToken = "DAI"
)

// ValidToken reports whether t is a supported reward token.
func ValidToken(t RewardToken) bool {
	switch t {
	case TokenETH, TokenUSDC, TokenDAI:
		return true
	}
	return false
}

// TagList is a set of free-form labels stored as a JSON text column.
type TagList []string

func (t TagList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *TagList) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported tag list column type %T", value)
	}
}

// Bounty is a funded request to fix a referenced external issue.
// AssignedTo is non-null only while status is active or completed, and the
// reward amount is immutable once the bounty leaves the open state.
type Bounty struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	Slug        string          `gorm:"index" json:"slug"`
	Title       string          `gorm:"not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Amount      decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"amount"`
	Token       RewardToken     `gorm:"type:varchar(16);not null" json:"token"`
	Repository  string          `gorm:"type:varchar(256)" json:"repository,omitempty"`
	IssueNumber *int            `json:"issue_number,omitempty"`
	Status      BountyStatus    `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedBy   string          `gorm:"type:varchar(64);not null;index" json:"created_by"`
	AssignedTo  *string         `gorm:"type:varchar(64);index" json:"assigned_to,omitempty"`
	Tags        TagList         `gorm:"type:text" json:"tags"`
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}
