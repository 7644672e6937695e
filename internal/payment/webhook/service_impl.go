package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	"github.com/smallbiznis/creditledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
	purchasedomain "github.com/smallbiznis/creditledger/internal/purchase/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SourceClient  = "client"
	SourceWebhook = "webhook"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      paymentdomain.Repository
	Gateway   paymentdomain.Gateway
	Purchases purchasedomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      paymentdomain.Repository
	gateway   paymentdomain.Gateway
	purchases purchasedomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) paymentdomain.Dispatcher {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.webhook"),
		genID:     p.GenID,
		clock:     clk,
		repo:      p.Repo,
		gateway:   p.Gateway,
		purchases: p.Purchases,
		metrics:   p.Metrics,
	}
}

// VerifyClientPayment is the browser path. The caller must own the order and
// present a valid gateway signature before fulfillment runs.
func (s *Service) VerifyClientPayment(ctx context.Context, req paymentdomain.VerifyPaymentRequest) (purchasedomain.FulfillResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	paymentID := strings.TrimSpace(req.PaymentID)
	signature := strings.TrimSpace(req.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return "", paymentdomain.ErrInvalidRequest
	}

	if _, err := s.purchases.Get(ctx, req.UserID, orderID); err != nil {
		return "", err
	}
	if err := s.gateway.VerifyPaymentSignature(orderID, paymentID, signature); err != nil {
		logger.WithUser(logger.WithContext(ctx, s.log), req.UserID).Warn("payment signature rejected",
			zap.String("order_id", orderID),
		)
		return "", err
	}

	result, err := s.purchases.Fulfill(ctx, orderID, paymentID)
	s.recordFulfillment(ctx, SourceClient, result, err)
	return result, err
}

// IngestWebhook is the server-to-server path. Every verified delivery is
// recorded once. A redelivery of an event that was already processed is
// acknowledged without touching the ledger; one whose earlier processing
// never completed is fulfilled again, since fulfillment is idempotent.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.gateway == nil || s.gateway.Provider() != provider {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := s.gateway.VerifyWebhook(ctx, payload, headers); err != nil {
		return err
	}

	event, err := s.gateway.ParseWebhook(ctx, payload)
	if err != nil {
		return err
	}
	s.metrics.RecordPaymentEvent(ctx, provider, event.Type)

	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", provider),
		zap.String("event_type", event.Type),
		zap.String("order_id", event.OrderID),
	)

	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		OrderID:         event.OrderID,
		PaymentID:       event.PaymentID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return err
	}
	stored := inserted
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.ProcessedAt != nil {
				log.Debug("payment event already processed")
				return nil
			}
			record, stored = existing, true
		}
		log.Debug("payment event redelivered")
	}

	if event.Type != paymentdomain.EventTypePaymentCaptured {
		log.Debug("payment event ignored")
		return nil
	}

	result, err := s.purchases.Fulfill(ctx, event.OrderID, event.PaymentID)
	s.recordFulfillment(ctx, SourceWebhook, result, err)
	if errors.Is(err, ledgerdomain.ErrNotFound) {
		log.Warn("captured payment for unknown order", zap.String("payment_id", event.PaymentID))
		return nil
	}
	if err != nil {
		return err
	}

	if stored {
		if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
			log.Warn("mark payment event processed failed", zap.Error(err))
		}
	}
	log.Info("payment captured", zap.String("result", string(result)))
	return nil
}

func (s *Service) recordFulfillment(ctx context.Context, source string, result purchasedomain.FulfillResult, err error) {
	switch {
	case errors.Is(err, ledgerdomain.ErrNotFound):
		s.metrics.RecordFulfillment(ctx, source, "not_found")
	case err != nil:
		s.metrics.RecordFulfillment(ctx, source, "error")
	default:
		s.metrics.RecordFulfillment(ctx, source, string(result))
	}
}
