package domain

import "errors"

var (
	ErrNotFound            = errors.New("not_found")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidCredits      = errors.New("invalid_credits")
	ErrInvalidDirection    = errors.New("invalid_direction")
	ErrInvalidPurpose      = errors.New("invalid_purpose")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrDuplicatePurchase   = errors.New("duplicate_purchase")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrInternalConsistency = errors.New("internal_consistency")
)
