package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	GetPricing(ctx context.Context, db *gorm.DB) (*CreditPricing, error)
	SavePricing(ctx context.Context, db *gorm.DB, pricing *CreditPricing) error
	CreateBundle(ctx context.Context, db *gorm.DB, bundle *CreditBundle) error
	UpdateBundle(ctx context.Context, db *gorm.DB, bundle *CreditBundle) error
	FindBundle(ctx context.Context, db *gorm.DB, id int64) (*CreditBundle, error)
	ListBundles(ctx context.Context, db *gorm.DB, activeOnly bool) ([]CreditBundle, error)
}
