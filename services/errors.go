package services

import "errors"

// Typed failures surfaced by the bounty, ledger and submission services.
// Handlers map these onto HTTP statuses; race losers (ErrAlreadyAssigned,
// ErrAlreadyReviewed) are expected to re-fetch state rather than retry blindly.
var (
	ErrValidation         = errors.New("invalid request")
	ErrInvalidTransition  = errors.New("invalid lifecycle transition")
	ErrAlreadyAssigned    = errors.New("bounty is already assigned")
	ErrAlreadyReviewed    = errors.New("submission has already been reviewed")
	ErrEscrowNotHeld      = errors.New("escrow is not in held state")
	ErrInvalidAmount      = errors.New("escrow amount must be positive")
	ErrDuplicateEscrow    = errors.New("escrow already exists for this bounty")
	ErrAuthorization      = errors.New("caller is not authorized for this operation")
	ErrBountyNotFound     = errors.New("bounty not found")
	ErrSubmissionNotFound = errors.New("submission not found")
)
