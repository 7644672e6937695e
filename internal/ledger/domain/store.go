package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Store is the only way to touch wallets, purchases, credits and usage
// rows. Every mutation runs inside Transaction; a callback error rolls
// the whole unit back.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	WithLockedWallet(ctx context.Context, userID string, fn func(tx Tx, w *Wallet) error) error
	WithLockedUserCredits(ctx context.Context, userID string, fn func(tx Tx, c *UserCredits) error) error

	GetWallet(ctx context.Context, userID string) (*Wallet, error)
	GetUserCredits(ctx context.Context, userID string) (*UserCredits, error)
	GetDailyUsage(ctx context.Context, userID, day string) (int64, error)
	GetPurchase(ctx context.Context, paymentID string) (*CreditPurchase, error)
	ListPurchases(ctx context.Context, filter PurchaseFilter) ([]CreditPurchase, error)
	ListWalletHistory(ctx context.Context, filter HistoryFilter) ([]WalletHistory, error)
	ListCreditUsage(ctx context.Context, filter HistoryFilter) ([]CreditUsageHistory, error)
	ReconcileWallet(ctx context.Context, userID string) (*Reconciliation, error)
	ReconcileWallets(ctx context.Context, afterWalletID snowflake.ID, limit int) ([]Reconciliation, error)
	PurchaseStats(ctx context.Context) (*PurchaseStats, error)
}

// Tx is a ledger transaction. Locks are row locks taken in the order
// purchase, wallet, user credits. Invariants are checked when a locked
// callback returns and a violation aborts the transaction with
// ErrInternalConsistency.
type Tx interface {
	// WithLockedWallet locks the user's wallet, creating it with a zero
	// balance when missing. A balance change must be matched by success
	// history appended inside the same callback.
	WithLockedWallet(userID string, fn func(w *Wallet) error) error
	// WithLockedUserCredits locks the user's credits row, creating it when
	// missing. Used credits never decrease and remaining never goes negative.
	WithLockedUserCredits(userID string, fn func(c *UserCredits) error) error
	// WithLockedPurchase locks the purchase by its payment id. Status
	// changes must follow CanTransition.
	WithLockedPurchase(paymentID string, fn func(p *CreditPurchase) error) error

	CreatePurchase(p *CreditPurchase) error
	FindPurchase(paymentID string) (*CreditPurchase, error)
	// AppendWalletHistory requires the entry's wallet to be locked in this
	// transaction.
	AppendWalletHistory(h *WalletHistory) error
	AppendCreditUsage(u *CreditUsageHistory) error
	IncrementDailyUsage(userID, day string) (int64, error)
}

type PurchaseFilter struct {
	UserID        string
	Status        Status
	Method        PurchaseMethod
	CreatedBefore time.Time
	CreatedAfter  time.Time
	BeforeID      snowflake.ID
	Ascending     bool
	Limit         int
}

type HistoryFilter struct {
	UserID   string
	BeforeID snowflake.ID
	Limit    int
}
