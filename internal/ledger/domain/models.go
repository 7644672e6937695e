package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Direction is the side of a wallet movement.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Purpose classifies why money moved in a wallet.
type Purpose string

const (
	PurposeTopUp          Purpose = "top-up"
	PurposeRefund         Purpose = "refund"
	PurposeCreditPurchase Purpose = "credit-purchase"
	PurposeSubscription   Purpose = "subscription"
	PurposeUsage          Purpose = "usage"
	PurposeWithdraw       Purpose = "withdraw"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeTopUp, PurposeRefund, PurposeCreditPurchase, PurposeSubscription, PurposeUsage, PurposeWithdraw:
		return true
	}
	return false
}

// Status is shared by wallet history entries and credit purchases.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// IsTerminal reports whether a purchase has left pending. Fulfillment
// treats any terminal purchase as already processed.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// CanTransition lists the only purchase transitions the ledger accepts.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusSuccess || to == StatusFailed
	case StatusSuccess:
		return to == StatusRefunded
	}
	return false
}

type PurchaseMethod string

const (
	MethodOnline PurchaseMethod = "online"
	MethodWallet PurchaseMethod = "wallet"
)

// Wallet holds a user's stored money. It is created lazily the first time
// it is locked.
type Wallet struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID    string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_wallets_user" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"balance"`
	Currency  string          `gorm:"type:varchar(3);not null" json:"currency"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// WalletHistory is an append-only wallet movement. Only success entries
// count toward the balance.
type WalletHistory struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	WalletID    snowflake.ID    `gorm:"not null;index" json:"wallet_id"`
	UserID      string          `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Direction   Direction       `gorm:"type:varchar(8);not null" json:"direction"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Purpose     Purpose         `gorm:"type:varchar(32);not null" json:"purpose"`
	ReferenceID *string         `gorm:"type:varchar(128);index" json:"reference_id,omitempty"`
	Status      Status          `gorm:"type:varchar(16);not null" json:"status"`
	Description string          `gorm:"type:text;not null" json:"description,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

func (WalletHistory) TableName() string { return "wallet_histories" }

// SignedAmount is the entry's effect on the balance.
func (h WalletHistory) SignedAmount() decimal.Decimal {
	if h.Direction == DirectionDebit {
		return h.Amount.Neg()
	}
	return h.Amount
}

// CreditPurchase records one purchase of credits. PaymentID is the
// idempotency key: the gateway order id for online purchases or a
// synthetic reference for wallet purchases.
type CreditPurchase struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID           string          `gorm:"type:varchar(64);not null;index" json:"user_id"`
	BundleID         *snowflake.ID   `gorm:"index" json:"bundle_id,omitempty"`
	CreditsPurchased int64           `gorm:"not null" json:"credits_purchased"`
	RatePerCredit    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"rate_per_credit"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	Currency         string          `gorm:"type:varchar(3);not null" json:"currency"`
	Method           PurchaseMethod  `gorm:"type:varchar(16);not null" json:"method"`
	PaymentID        string          `gorm:"type:varchar(128);not null;uniqueIndex:ux_credit_purchases_payment" json:"order_id"`
	GatewayPaymentID *string         `gorm:"type:varchar(128)" json:"payment_id,omitempty"`
	Status           Status          `gorm:"type:varchar(16);not null;index" json:"status"`
	FailureReason    *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	FulfilledAt      *time.Time      `json:"fulfilled_at,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt        time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (CreditPurchase) TableName() string { return "credit_purchases" }

// UserCredits is the metered-service allowance. RemainingCredits is
// derived and recomputed on every save.
type UserCredits struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID           string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_credits_user" json:"user_id"`
	TotalCredits     int64        `gorm:"not null;default:0" json:"total_credits"`
	UsedCredits      int64        `gorm:"not null;default:0" json:"used_credits"`
	RemainingCredits int64        `gorm:"not null;default:0" json:"remaining_credits"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (UserCredits) TableName() string { return "user_credits" }

func (c *UserCredits) Recompute() {
	c.RemainingCredits = c.TotalCredits - c.UsedCredits
}

// CreditUsageHistory is written once per successfully completed paid call.
type CreditUsageHistory struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID      string       `gorm:"type:varchar(64);not null;index" json:"user_id"`
	CreditsUsed int64        `gorm:"not null" json:"credits_used"`
	Purpose     string       `gorm:"type:varchar(32);not null" json:"purpose"`
	ReferenceID *string      `gorm:"type:varchar(128)" json:"reference_id,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (CreditUsageHistory) TableName() string { return "credit_usage_histories" }

// DailyUsageCounter counts free uses per user per calendar day. It only
// grows.
type DailyUsageCounter struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_daily_usage_user_date,priority:1"`
	UsageDate string       `gorm:"type:varchar(10);not null;uniqueIndex:ux_daily_usage_user_date,priority:2"`
	Uses      int64        `gorm:"not null;default:0"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (DailyUsageCounter) TableName() string { return "daily_usage_counters" }

// Models lists every table the ledger owns, in creation order.
func Models() []any {
	return []any{
		&Wallet{},
		&WalletHistory{},
		&CreditPurchase{},
		&UserCredits{},
		&CreditUsageHistory{},
		&DailyUsageCounter{},
	}
}

// Reconciliation compares a wallet balance with its successful history.
type Reconciliation struct {
	WalletID      snowflake.ID    `json:"wallet_id"`
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
}

func (r Reconciliation) Drift() decimal.Decimal {
	return r.Balance.Sub(r.LedgerBalance)
}

func (r Reconciliation) Consistent() bool {
	return r.Balance.Equal(r.LedgerBalance)
}

// PurchaseStats aggregates the admin dashboard figures.
type PurchaseStats struct {
	Revenue          decimal.Decimal  `json:"total_revenue"`
	CreditsPurchased int64            `json:"credits_bought"`
	CreditsUsed      int64            `json:"credits_used"`
	ByStatus         map[Status]int64 `json:"purchases_by_status"`
}
