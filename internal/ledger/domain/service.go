package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Service exposes read models and operator adjustments on top of Store.
type Service interface {
	GetWallet(ctx context.Context, userID string) (*Wallet, error)
	ListWalletHistory(ctx context.Context, filter HistoryFilter) ([]WalletHistory, error)
	GetUserCredits(ctx context.Context, userID string) (*UserCredits, error)
	ListCreditUsage(ctx context.Context, filter HistoryFilter) ([]CreditUsageHistory, error)
	ListAllCreditUsage(ctx context.Context, filter HistoryFilter) ([]CreditUsageHistory, error)
	GrantCredits(ctx context.Context, req GrantCreditsRequest) (*UserCredits, error)
	AdjustWallet(ctx context.Context, req AdjustWalletRequest) (*Wallet, error)
	ReconcileWallet(ctx context.Context, userID string) (*Reconciliation, error)
	Stats(ctx context.Context) (*PurchaseStats, error)
}

type GrantCreditsRequest struct {
	UserID  string
	Credits int64
	Reason  string
}

// AdjustWalletRequest moves money in or out of a wallet outside the
// purchase flow. Credit adjustments default to the top-up purpose and
// debits to withdraw.
type AdjustWalletRequest struct {
	UserID      string
	Direction   Direction
	Amount      decimal.Decimal
	Purpose     Purpose
	ReferenceID string
	Description string
}
