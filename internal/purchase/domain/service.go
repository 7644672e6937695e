package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
)

// FulfillResult distinguishes the first fulfillment from a repeat. A repeat
// is a normal outcome, not an error.
type FulfillResult string

const (
	FulfillSucceeded        FulfillResult = "fulfilled"
	FulfillAlreadyProcessed FulfillResult = "already_processed"
)

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error)
	Fulfill(ctx context.Context, orderID, paymentID string) (FulfillResult, error)
	PurchaseWithWallet(ctx context.Context, req WalletPurchaseRequest) (*WalletPurchaseResponse, error)
	Get(ctx context.Context, userID, orderID string) (*ledgerdomain.CreditPurchase, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	ListAll(ctx context.Context, req ListRequest) (*ListResponse, error)
	ListPending(ctx context.Context, olderThan time.Time, afterID snowflake.ID, limit int) ([]ledgerdomain.CreditPurchase, error)
	Refund(ctx context.Context, req RefundRequest) (*ledgerdomain.CreditPurchase, error)
	MarkFailed(ctx context.Context, req MarkFailedRequest) (*ledgerdomain.CreditPurchase, error)
	Receipt(ctx context.Context, userID, orderID string) ([]byte, error)
}

// CreateOrderRequest names a bundle or a custom credit count. The price is
// always computed server-side.
type CreateOrderRequest struct {
	UserID   string `json:"-"`
	BundleID string `json:"bundle_id"`
	Credits  int64  `json:"credits"`
}

type OrderResponse struct {
	OrderID     string          `json:"order_id"`
	AmountMinor int64           `json:"amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Credits     int64           `json:"credits"`
	BundleID    *snowflake.ID   `json:"bundle_id,omitempty"`
	Key         string          `json:"key"`
	Provider    string          `json:"provider"`
}

type WalletPurchaseRequest struct {
	UserID         string `json:"-"`
	BundleID       string `json:"bundle_id"`
	Credits        int64  `json:"credits"`
	IdempotencyKey string `json:"-"`
}

type WalletPurchaseResponse struct {
	Result   FulfillResult                `json:"result"`
	Purchase *ledgerdomain.CreditPurchase `json:"purchase"`
	Balance  decimal.Decimal              `json:"wallet_balance"`
	Credits  *ledgerdomain.UserCredits    `json:"credits"`
}

type ListRequest struct {
	UserID string
	Status ledgerdomain.Status
	pagination.Pagination
}

type ListResponse struct {
	Purchases []ledgerdomain.CreditPurchase `json:"purchases"`
	PageInfo  pagination.PageInfo           `json:"page_info"`
}

type RefundRequest struct {
	OrderID string `json:"-"`
	Reason  string `json:"reason"`
}

type MarkFailedRequest struct {
	OrderID string `json:"-"`
	Reason  string `json:"reason"`
}
