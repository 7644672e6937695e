package domain

import (
	"context"
	"errors"
)

// Service gates metered calls. Callers run Check, perform the call outside
// any transaction, then Commit on success or Discard on failure.
type Service interface {
	Check(ctx context.Context, userID string) (*Admission, error)
	Commit(ctx context.Context, userID string, mode Mode, reference string) error
	Discard(ctx context.Context, userID string, mode Mode)
	Status(ctx context.Context, userID string) (*Status, error)
}

var (
	ErrUsageBlocked = errors.New("usage_blocked")
	ErrInvalidMode  = errors.New("invalid_mode")
)
