package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/cache"
	"github.com/smallbiznis/creditledger/internal/catalog/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/smallbiznis/creditledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	pricingKey       = "pricing"
	activeBundlesKey = "bundles:active"
	catalogTTL       = time.Minute
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Clock  clock.Clock
	Config config.Config `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	currency string

	pricing cache.Cache[string, domain.CreditPricing]
	bundles cache.Cache[string, []domain.CreditBundle]
}

func New(p Params) domain.Service {
	currency := strings.ToUpper(strings.TrimSpace(p.Config.Payment.Currency))
	if currency == "" {
		currency = "INR"
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("catalog.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    clk,
		currency: currency,
		pricing:  cache.NewTTLCache[string, domain.CreditPricing](),
		bundles:  cache.NewTTLCache[string, []domain.CreditBundle](),
	}
}

// GetPricing falls back to the default rate when no row exists yet.
func (s *Service) GetPricing(ctx context.Context) (*domain.CreditPricing, error) {
	if cached, ok := s.pricing.Get(pricingKey); ok {
		return &cached, nil
	}
	p, err := s.repo.GetPricing(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &domain.CreditPricing{
			ID:            domain.PricingID,
			RatePerCredit: domain.DefaultRatePerCredit,
			Currency:      s.currency,
		}
	}
	s.pricing.Set(pricingKey, *p, catalogTTL)
	return p, nil
}

func (s *Service) UpdatePricing(ctx context.Context, req domain.UpdatePricingRequest) (*domain.CreditPricing, error) {
	rate := req.RatePerCredit.Round(2)
	if !rate.IsPositive() || rate.GreaterThan(domain.MaxPrice) {
		return nil, domain.ErrInvalidRate
	}
	p := &domain.CreditPricing{
		ID:            domain.PricingID,
		RatePerCredit: rate,
		Currency:      s.currency,
		UpdatedAt:     s.clock.Now(),
	}
	if err := s.repo.SavePricing(ctx, s.db, p); err != nil {
		return nil, err
	}
	s.pricing.Delete(pricingKey)
	s.log.Info("credit pricing updated", zap.String("rate_per_credit", rate.StringFixed(2)))
	return p, nil
}

func (s *Service) ListBundles(ctx context.Context, req domain.ListBundlesRequest) ([]domain.CreditBundle, error) {
	if req.IncludeInactive {
		return s.repo.ListBundles(ctx, s.db, false)
	}
	if cached, ok := s.bundles.Get(activeBundlesKey); ok {
		return cached, nil
	}
	items, err := s.repo.ListBundles(ctx, s.db, true)
	if err != nil {
		return nil, err
	}
	s.bundles.Set(activeBundlesKey, items, catalogTTL)
	return items, nil
}

func (s *Service) GetBundle(ctx context.Context, id string) (*domain.CreditBundle, error) {
	bundleID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	b, err := s.repo.FindBundle(ctx, s.db, bundleID.Int64())
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.ErrBundleNotFound
	}
	return b, nil
}

func (s *Service) CreateBundle(ctx context.Context, req domain.CreateBundleRequest) (*domain.CreditBundle, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Credits <= 0 || req.Credits > domain.MaxCredits {
		return nil, domain.ErrInvalidCredits
	}
	price := req.Price.Round(2)
	if !price.IsPositive() || price.GreaterThan(domain.MaxPrice) {
		return nil, domain.ErrInvalidPrice
	}

	bundleSlug := slug.Make(strings.TrimSpace(req.Slug))
	if bundleSlug == "" {
		bundleSlug = slug.Make(name)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	b := &domain.CreditBundle{
		ID:          s.genID.Generate(),
		Name:        name,
		Slug:        bundleSlug,
		Credits:     req.Credits,
		Price:       price,
		Description: trimmedPtr(req.Description),
		Active:      active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Metadata != nil {
		b.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.repo.CreateBundle(ctx, s.db, b); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateSlug
		}
		return nil, err
	}
	s.bundles.Purge()
	s.log.Info("credit bundle created",
		zap.String("bundle_id", b.ID.String()),
		zap.String("slug", b.Slug),
		zap.Int64("credits", b.Credits),
	)
	return b, nil
}

func (s *Service) UpdateBundle(ctx context.Context, req domain.UpdateBundleRequest) (*domain.CreditBundle, error) {
	b, err := s.GetBundle(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		b.Name = name
	}
	if req.Credits != nil {
		if *req.Credits <= 0 || *req.Credits > domain.MaxCredits {
			return nil, domain.ErrInvalidCredits
		}
		b.Credits = *req.Credits
	}
	if req.Price != nil {
		price := req.Price.Round(2)
		if !price.IsPositive() || price.GreaterThan(domain.MaxPrice) {
			return nil, domain.ErrInvalidPrice
		}
		b.Price = price
	}
	if req.Description != nil {
		b.Description = trimmedPtr(req.Description)
	}
	if req.Active != nil {
		b.Active = *req.Active
	}
	if req.Metadata != nil {
		b.Metadata = datatypes.JSONMap(req.Metadata)
	}

	b.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateBundle(ctx, s.db, b); err != nil {
		return nil, err
	}
	s.bundles.Purge()
	return b, nil
}

// DeactivateBundle hides a bundle from the storefront. Past purchases keep
// referring to it, so it is never deleted.
func (s *Service) DeactivateBundle(ctx context.Context, id string) (*domain.CreditBundle, error) {
	inactive := false
	return s.UpdateBundle(ctx, domain.UpdateBundleRequest{ID: id, Active: &inactive})
}

func (s *Service) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	bundleRef := strings.TrimSpace(req.BundleID)
	switch {
	case bundleRef != "" && req.Credits != 0:
		return nil, domain.ErrInvalidQuote
	case bundleRef == "" && (req.Credits <= 0 || req.Credits > domain.MaxCredits):
		return nil, domain.ErrInvalidCredits
	}

	if bundleRef != "" {
		b, err := s.GetBundle(ctx, bundleRef)
		if err != nil {
			return nil, err
		}
		if !b.Active {
			return nil, domain.ErrBundleInactive
		}
		id := b.ID
		return &domain.Quote{
			BundleID:      &id,
			Credits:       b.Credits,
			RatePerCredit: b.Price.Div(decimal.NewFromInt(b.Credits)).Round(2),
			TotalAmount:   b.Price,
			Currency:      s.currency,
		}, nil
	}

	pricing, err := s.GetPricing(ctx)
	if err != nil {
		return nil, err
	}
	total := pricing.RatePerCredit.Mul(decimal.NewFromInt(req.Credits)).Round(2)
	if total.GreaterThan(domain.MaxTotalAmount) {
		return nil, domain.ErrInvalidCredits
	}
	return &domain.Quote{
		Credits:       req.Credits,
		RatePerCredit: pricing.RatePerCredit,
		TotalAmount:   total,
		Currency:      s.currency,
	}, nil
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
