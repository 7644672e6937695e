package domain

import "errors"

var (
	ErrBundleNotFound = errors.New("bundle_not_found")
	ErrBundleInactive = errors.New("bundle_inactive")
	ErrDuplicateSlug  = errors.New("duplicate_slug")
	ErrInvalidID      = errors.New("invalid_id")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidCredits = errors.New("invalid_credits")
	ErrInvalidPrice   = errors.New("invalid_price")
	ErrInvalidRate    = errors.New("invalid_rate")
	ErrInvalidQuote   = errors.New("invalid_quote")
)
