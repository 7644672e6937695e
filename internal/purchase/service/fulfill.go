package service

import (
	"context"
	"strings"

	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	"github.com/smallbiznis/creditledger/internal/purchase/domain"
	"go.uber.org/zap"
)

// Fulfill moves a pending purchase to success and grants its credits. It
// is safe to call any number of times from any path: the purchase row lock
// admits one caller at a time and every caller after the first sees a
// terminal status and returns FulfillAlreadyProcessed.
func (s *Service) Fulfill(ctx context.Context, orderID, paymentID string) (domain.FulfillResult, error) {
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	if orderID == "" {
		return "", ledgerdomain.ErrNotFound
	}

	var (
		result   domain.FulfillResult
		purchase ledgerdomain.CreditPurchase
	)
	err := s.store.Transaction(ctx, func(tx ledgerdomain.Tx) error {
		return tx.WithLockedPurchase(orderID, func(p *ledgerdomain.CreditPurchase) error {
			if p.Status.IsTerminal() {
				result = domain.FulfillAlreadyProcessed
				purchase = *p
				return nil
			}

			now := s.clock.Now()
			p.Status = ledgerdomain.StatusSuccess
			p.FulfilledAt = &now
			if paymentID != "" {
				p.GatewayPaymentID = &paymentID
			}

			if p.TotalAmount.IsPositive() {
				if err := tx.WithLockedWallet(p.UserID, func(w *ledgerdomain.Wallet) error {
					return appendPassThrough(tx, w, p, paymentID)
				}); err != nil {
					return err
				}
			}

			if err := tx.WithLockedUserCredits(p.UserID, func(c *ledgerdomain.UserCredits) error {
				c.TotalCredits += p.CreditsPurchased
				return nil
			}); err != nil {
				return err
			}

			result = domain.FulfillSucceeded
			purchase = *p
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	log := logger.WithUser(logger.WithContext(ctx, s.log), purchase.UserID)
	if result == domain.FulfillAlreadyProcessed {
		log.Debug("purchase already processed",
			zap.String("order_id", orderID),
			zap.String("status", string(purchase.Status)),
		)
		return result, nil
	}
	log.Info("purchase fulfilled",
		zap.String("order_id", orderID),
		zap.String("payment_id", paymentID),
		zap.Int64("credits", purchase.CreditsPurchased),
	)
	return result, nil
}

// appendPassThrough records the money arriving from the gateway and leaving
// again for credits. The wallet balance is unchanged but its history shows
// the payment.
func appendPassThrough(tx ledgerdomain.Tx, w *ledgerdomain.Wallet, p *ledgerdomain.CreditPurchase, paymentID string) error {
	topUpRef := paymentID
	if topUpRef == "" {
		topUpRef = p.PaymentID
	}
	orderRef := p.PaymentID

	w.Balance = w.Balance.Add(p.TotalAmount)
	if err := tx.AppendWalletHistory(&ledgerdomain.WalletHistory{
		WalletID:    w.ID,
		Direction:   ledgerdomain.DirectionCredit,
		Amount:      p.TotalAmount,
		Purpose:     ledgerdomain.PurposeTopUp,
		ReferenceID: &topUpRef,
		Status:      ledgerdomain.StatusSuccess,
		Description: "gateway payment",
	}); err != nil {
		return err
	}

	w.Balance = w.Balance.Sub(p.TotalAmount)
	return tx.AppendWalletHistory(&ledgerdomain.WalletHistory{
		WalletID:    w.ID,
		Direction:   ledgerdomain.DirectionDebit,
		Amount:      p.TotalAmount,
		Purpose:     ledgerdomain.PurposeCreditPurchase,
		ReferenceID: &orderRef,
		Status:      ledgerdomain.StatusSuccess,
		Description: "credit purchase",
	})
}

// Refund reverses a successful purchase: unused credits are clawed back and
// the amount is returned to the wallet.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (*ledgerdomain.CreditPurchase, error) {
	orderID := strings.TrimSpace(req.OrderID)
	reason := strings.TrimSpace(req.Reason)

	var out ledgerdomain.CreditPurchase
	err := s.store.Transaction(ctx, func(tx ledgerdomain.Tx) error {
		return tx.WithLockedPurchase(orderID, func(p *ledgerdomain.CreditPurchase) error {
			if p.Status != ledgerdomain.StatusSuccess {
				return ledgerdomain.ErrInvalidTransition
			}

			now := s.clock.Now()
			p.Status = ledgerdomain.StatusRefunded
			p.RefundedAt = &now
			if reason != "" {
				p.FailureReason = &reason
			}

			if p.TotalAmount.IsPositive() {
				ref := p.PaymentID
				if err := tx.WithLockedWallet(p.UserID, func(w *ledgerdomain.Wallet) error {
					w.Balance = w.Balance.Add(p.TotalAmount)
					return tx.AppendWalletHistory(&ledgerdomain.WalletHistory{
						WalletID:    w.ID,
						Direction:   ledgerdomain.DirectionCredit,
						Amount:      p.TotalAmount,
						Purpose:     ledgerdomain.PurposeRefund,
						ReferenceID: &ref,
						Status:      ledgerdomain.StatusSuccess,
						Description: reason,
					})
				}); err != nil {
					return err
				}
			}

			if err := tx.WithLockedUserCredits(p.UserID, func(c *ledgerdomain.UserCredits) error {
				if c.RemainingCredits < p.CreditsPurchased {
					return ledgerdomain.ErrInsufficientCredits
				}
				c.TotalCredits -= p.CreditsPurchased
				return nil
			}); err != nil {
				return err
			}

			out = *p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase refunded",
		zap.String("order_id", orderID),
		zap.String("user_id", out.UserID),
		zap.String("amount", out.TotalAmount.StringFixed(2)),
	)
	return &out, nil
}

// MarkFailed closes a pending purchase that will never be paid.
func (s *Service) MarkFailed(ctx context.Context, req domain.MarkFailedRequest) (*ledgerdomain.CreditPurchase, error) {
	orderID := strings.TrimSpace(req.OrderID)
	reason := strings.TrimSpace(req.Reason)

	var out ledgerdomain.CreditPurchase
	err := s.store.Transaction(ctx, func(tx ledgerdomain.Tx) error {
		return tx.WithLockedPurchase(orderID, func(p *ledgerdomain.CreditPurchase) error {
			if p.Status != ledgerdomain.StatusPending {
				return ledgerdomain.ErrInvalidTransition
			}
			p.Status = ledgerdomain.StatusFailed
			if reason != "" {
				p.FailureReason = &reason
			}
			out = *p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase marked failed", zap.String("order_id", orderID), zap.String("reason", reason))
	return &out, nil
}
