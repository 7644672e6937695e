package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	"github.com/smallbiznis/creditledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
	"github.com/smallbiznis/creditledger/internal/providers/pdf"
	"github.com/smallbiznis/creditledger/internal/purchase/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store   ledgerdomain.Store
	Catalog catalogdomain.Service
	Gateway paymentdomain.Gateway
	Log     *zap.Logger
	Clock   clock.Clock
	PDF     pdf.Provider     `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	store   ledgerdomain.Store
	catalog catalogdomain.Service
	gateway paymentdomain.Gateway
	log     *zap.Logger
	clock   clock.Clock
	pdf     pdf.Provider
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	renderer := p.PDF
	if renderer == nil {
		renderer = pdf.New()
	}
	return &Service{
		store:   p.Store,
		catalog: p.Catalog,
		gateway: p.Gateway,
		log:     p.Log.Named("purchase.service"),
		clock:   clk,
		pdf:     renderer,
		metrics: p.Metrics,
	}
}

// CreateOrder prices the request, opens a gateway order and records the
// pending purchase. The gateway call runs before any lock is taken; if it
// fails nothing is written.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.OrderResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	quote, err := s.catalog.Quote(ctx, catalogdomain.QuoteRequest{BundleID: req.BundleID, Credits: req.Credits})
	if err != nil {
		return nil, err
	}

	amountMinor := MinorUnits(quote.TotalAmount)
	if amountMinor <= 0 {
		return nil, domain.ErrInvalidOrder
	}

	log := logger.WithUser(logger.WithContext(ctx, s.log), userID)
	order, err := s.gateway.CreateOrder(ctx, paymentdomain.OrderRequest{
		AmountMinor: amountMinor,
		Currency:    quote.Currency,
		Receipt:     "rcpt_" + ulid.Make().String(),
		Notes: map[string]string{
			"user_id": userID,
			"credits": strconv.FormatInt(quote.Credits, 10),
		},
	})
	if err != nil {
		log.Warn("gateway order failed", zap.Error(err))
		return nil, err
	}

	purchase := &ledgerdomain.CreditPurchase{
		UserID:           userID,
		BundleID:         quote.BundleID,
		CreditsPurchased: quote.Credits,
		RatePerCredit:    quote.RatePerCredit,
		TotalAmount:      quote.TotalAmount,
		Currency:         quote.Currency,
		Method:           ledgerdomain.MethodOnline,
		PaymentID:        order.ID,
		Status:           ledgerdomain.StatusPending,
	}
	if err := s.store.Transaction(ctx, func(tx ledgerdomain.Tx) error {
		return tx.CreatePurchase(purchase)
	}); err != nil {
		return nil, err
	}

	log.Info("credit order created",
		zap.String("order_id", order.ID),
		zap.Int64("credits", quote.Credits),
		zap.String("amount", quote.TotalAmount.StringFixed(2)),
	)
	return &domain.OrderResponse{
		OrderID:     order.ID,
		AmountMinor: amountMinor,
		TotalAmount: quote.TotalAmount,
		Currency:    quote.Currency,
		Credits:     quote.Credits,
		BundleID:    quote.BundleID,
		Key:         s.gateway.PublicKey(),
		Provider:    s.gateway.Provider(),
	}, nil
}

// Get hides other users' purchases behind ErrNotFound. An empty userID is
// an operator lookup.
func (s *Service) Get(ctx context.Context, userID, orderID string) (*ledgerdomain.CreditPurchase, error) {
	p, err := s.store.GetPurchase(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID != "" && p.UserID != userID {
		return nil, ledgerdomain.ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	return s.list(ctx, req)
}

// ListAll pages purchases of every user, newest first. A UserID narrows it
// to one user.
func (s *Service) ListAll(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	return s.list(ctx, req)
}

func (s *Service) list(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return nil, err
	}

	limit := req.Limit()
	filter := ledgerdomain.PurchaseFilter{
		UserID: strings.TrimSpace(req.UserID),
		Status: req.Status,
		Limit:  limit + 1,
	}
	if cursor != nil {
		filter.BeforeID = snowflake.ID(cursor.ID)
	}
	items, err := s.store.ListPurchases(ctx, filter)
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.Trim(items, limit, func(p ledgerdomain.CreditPurchase) int64 {
		return p.ID.Int64()
	})
	return &domain.ListResponse{Purchases: items, PageInfo: pageInfo}, nil
}

// ListPending returns online purchases still waiting for a confirmation,
// oldest first, starting after afterID.
func (s *Service) ListPending(ctx context.Context, olderThan time.Time, afterID snowflake.ID, limit int) ([]ledgerdomain.CreditPurchase, error) {
	return s.store.ListPurchases(ctx, ledgerdomain.PurchaseFilter{
		Status:        ledgerdomain.StatusPending,
		Method:        ledgerdomain.MethodOnline,
		CreatedBefore: olderThan,
		BeforeID:      afterID,
		Ascending:     true,
		Limit:         limit,
	})
}

// MinorUnits converts a two-decimal amount to the gateway's integer units.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
