package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	"github.com/smallbiznis/creditledger/internal/purchase/domain"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLen = 64

// PurchaseWithWallet buys credits from the wallet balance in one
// transaction. Without enough balance it returns ErrInsufficientBalance and
// writes nothing. With an idempotency key a retried submission returns the
// purchase the first one created.
func (s *Service) PurchaseWithWallet(ctx context.Context, req domain.WalletPurchaseRequest) (*domain.WalletPurchaseResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return nil, domain.ErrInvalidIdempotencyKey
	}

	quote, err := s.catalog.Quote(ctx, catalogdomain.QuoteRequest{BundleID: req.BundleID, Credits: req.Credits})
	if err != nil {
		return nil, err
	}

	reference := walletReference(userID, key)

	resp := &domain.WalletPurchaseResponse{Result: domain.FulfillSucceeded}
	err = s.store.WithLockedWallet(ctx, userID, func(tx ledgerdomain.Tx, w *ledgerdomain.Wallet) error {
		if key != "" {
			existing, err := tx.FindPurchase(reference)
			switch {
			case err == nil:
				resp.Result = domain.FulfillAlreadyProcessed
				resp.Purchase = existing
				resp.Balance = w.Balance
				return nil
			case !errors.Is(err, ledgerdomain.ErrNotFound):
				return err
			}
		}

		if w.Balance.LessThan(quote.TotalAmount) {
			return ledgerdomain.ErrInsufficientBalance
		}

		w.Balance = w.Balance.Sub(quote.TotalAmount)
		if err := tx.AppendWalletHistory(&ledgerdomain.WalletHistory{
			WalletID:    w.ID,
			Direction:   ledgerdomain.DirectionDebit,
			Amount:      quote.TotalAmount,
			Purpose:     ledgerdomain.PurposeCreditPurchase,
			ReferenceID: &reference,
			Status:      ledgerdomain.StatusSuccess,
			Description: "credit purchase",
		}); err != nil {
			return err
		}

		now := s.clock.Now()
		purchase := &ledgerdomain.CreditPurchase{
			UserID:           userID,
			BundleID:         quote.BundleID,
			CreditsPurchased: quote.Credits,
			RatePerCredit:    quote.RatePerCredit,
			TotalAmount:      quote.TotalAmount,
			Currency:         quote.Currency,
			Method:           ledgerdomain.MethodWallet,
			PaymentID:        reference,
			Status:           ledgerdomain.StatusSuccess,
			FulfilledAt:      &now,
		}
		if err := tx.CreatePurchase(purchase); err != nil {
			return err
		}

		if err := tx.WithLockedUserCredits(userID, func(c *ledgerdomain.UserCredits) error {
			c.TotalCredits += quote.Credits
			return nil
		}); err != nil {
			return err
		}

		resp.Purchase = purchase
		resp.Balance = w.Balance
		return nil
	})

	result := string(resp.Result)
	if err != nil {
		result = "error"
		if errors.Is(err, ledgerdomain.ErrInsufficientBalance) {
			result = "insufficient_balance"
		}
	}
	s.metrics.RecordWalletPurchase(ctx, result)
	if err != nil {
		return nil, err
	}

	credits, err := s.store.GetUserCredits(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp.Credits = credits

	logger.WithUser(logger.WithContext(ctx, s.log), userID).Info("wallet purchase",
		zap.String("reference", reference),
		zap.String("result", string(resp.Result)),
		zap.Int64("credits", quote.Credits),
		zap.String("amount", quote.TotalAmount.StringFixed(2)),
	)
	return resp, nil
}

// walletReference names a wallet purchase. A keyed purchase gets a fixed
// width digest of user and key so it fits payment_id whatever their length.
func walletReference(userID, key string) string {
	if key == "" {
		return "wallet_" + ulid.Make().String()
	}
	sum := sha256.Sum256([]byte(userID + ":" + key))
	return "wallet_" + hex.EncodeToString(sum[:20])
}
