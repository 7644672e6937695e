package authorization

import "context"

// Actor is the caller as forwarded by the identity proxy.
type Actor struct {
	UserID string
	Role   string
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}
