package models

import (
	"strings"
	"time"
)

// NormalizeAddress canonicalizes a wallet address for storage and comparison.
// Addresses compare case-insensitively, so every write path lowercases first.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Identity is a wallet-keyed participant. The linked source-control handle is
// mirrored from the profile service by the identity sync worker; everything
// else about an identity (created/assigned/completed bounties) is a read-model
// query over the bounties table, never stored here.
type Identity struct {
	Address         string     `gorm:"primaryKey;type:varchar(64)" json:"address"`
	GithubUsername  *string    `gorm:"index" json:"github_username,omitempty"`
	GithubID        *string    `json:"github_id,omitempty"`
	GithubConnected bool       `gorm:"not null;default:false" json:"github_connected"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
