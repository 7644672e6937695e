package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Service interface {
	GetPricing(ctx context.Context) (*CreditPricing, error)
	UpdatePricing(ctx context.Context, req UpdatePricingRequest) (*CreditPricing, error)
	ListBundles(ctx context.Context, req ListBundlesRequest) ([]CreditBundle, error)
	GetBundle(ctx context.Context, id string) (*CreditBundle, error)
	CreateBundle(ctx context.Context, req CreateBundleRequest) (*CreditBundle, error)
	UpdateBundle(ctx context.Context, req UpdateBundleRequest) (*CreditBundle, error)
	DeactivateBundle(ctx context.Context, id string) (*CreditBundle, error)
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

type UpdatePricingRequest struct {
	RatePerCredit decimal.Decimal `json:"rate_per_credit"`
}

type ListBundlesRequest struct {
	IncludeInactive bool
}

type CreateBundleRequest struct {
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Credits     int64           `json:"credits"`
	Price       decimal.Decimal `json:"price"`
	Description *string         `json:"description"`
	Active      *bool           `json:"active"`
	Metadata    map[string]any  `json:"metadata"`
}

type UpdateBundleRequest struct {
	ID          string           `json:"-"`
	Name        *string          `json:"name"`
	Credits     *int64           `json:"credits"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description"`
	Active      *bool            `json:"active"`
	Metadata    map[string]any   `json:"metadata"`
}

// QuoteRequest names either a bundle or a custom credit count, never both.
type QuoteRequest struct {
	BundleID string `json:"bundle_id"`
	Credits  int64  `json:"credits"`
}
