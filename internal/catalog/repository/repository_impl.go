package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/creditledger/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// GetPricing returns nil when the row has not been seeded.
func (r *repo) GetPricing(ctx context.Context, db *gorm.DB) (*domain.CreditPricing, error) {
	var p domain.CreditPricing
	err := db.WithContext(ctx).Where("id = ?", domain.PricingID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) SavePricing(ctx context.Context, db *gorm.DB, pricing *domain.CreditPricing) error {
	if pricing == nil {
		return gorm.ErrInvalidData
	}
	pricing.ID = domain.PricingID
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate_per_credit", "currency", "updated_at"}),
	}).Create(pricing).Error
}

func (r *repo) CreateBundle(ctx context.Context, db *gorm.DB, bundle *domain.CreditBundle) error {
	return db.WithContext(ctx).Create(bundle).Error
}

func (r *repo) UpdateBundle(ctx context.Context, db *gorm.DB, bundle *domain.CreditBundle) error {
	if bundle == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).
		Model(&domain.CreditBundle{}).
		Where("id = ?", bundle.ID).
		Updates(map[string]any{
			"name":        bundle.Name,
			"credits":     bundle.Credits,
			"price":       bundle.Price,
			"description": bundle.Description,
			"active":      bundle.Active,
			"metadata":    bundle.Metadata,
			"updated_at":  bundle.UpdatedAt,
		}).Error
}

func (r *repo) FindBundle(ctx context.Context, db *gorm.DB, id int64) (*domain.CreditBundle, error) {
	var b domain.CreditBundle
	err := db.WithContext(ctx).Where("id = ?", id).Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) ListBundles(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.CreditBundle, error) {
	stmt := db.WithContext(ctx).Model(&domain.CreditBundle{})
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	var items []domain.CreditBundle
	if err := stmt.Order("price ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
