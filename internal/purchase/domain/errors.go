package domain

import "errors"

var (
	ErrInvalidOrder          = errors.New("invalid_order")
	ErrInvalidIdempotencyKey = errors.New("invalid_idempotency_key")
	ErrReceiptUnavailable    = errors.New("receipt_unavailable")
)
