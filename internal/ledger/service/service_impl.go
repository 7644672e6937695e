package service

import (
	"context"
	"strings"

	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store ledgerdomain.Store
	Log   *zap.Logger
}

type Service struct {
	store ledgerdomain.Store
	log   *zap.Logger
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("ledger.service"),
	}
}

func (s *Service) GetWallet(ctx context.Context, userID string) (*ledgerdomain.Wallet, error) {
	return s.store.GetWallet(ctx, userID)
}

func (s *Service) ListWalletHistory(ctx context.Context, filter ledgerdomain.HistoryFilter) ([]ledgerdomain.WalletHistory, error) {
	if strings.TrimSpace(filter.UserID) == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	return s.store.ListWalletHistory(ctx, filter)
}

func (s *Service) GetUserCredits(ctx context.Context, userID string) (*ledgerdomain.UserCredits, error) {
	return s.store.GetUserCredits(ctx, userID)
}

func (s *Service) ListCreditUsage(ctx context.Context, filter ledgerdomain.HistoryFilter) ([]ledgerdomain.CreditUsageHistory, error) {
	if strings.TrimSpace(filter.UserID) == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	return s.store.ListCreditUsage(ctx, filter)
}

// ListAllCreditUsage is the operator view across users. A UserID narrows it
// to one user.
func (s *Service) ListAllCreditUsage(ctx context.Context, filter ledgerdomain.HistoryFilter) ([]ledgerdomain.CreditUsageHistory, error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	return s.store.ListCreditUsage(ctx, filter)
}

// GrantCredits adds credits without a payment, e.g. goodwill or support.
func (s *Service) GrantCredits(ctx context.Context, req ledgerdomain.GrantCreditsRequest) (*ledgerdomain.UserCredits, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Credits <= 0 {
		return nil, ledgerdomain.ErrInvalidCredits
	}

	var out ledgerdomain.UserCredits
	err := s.store.WithLockedUserCredits(ctx, req.UserID, func(_ ledgerdomain.Tx, c *ledgerdomain.UserCredits) error {
		c.TotalCredits += req.Credits
		c.Recompute()
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("credits granted",
		zap.String("user_id", req.UserID),
		zap.Int64("credits", req.Credits),
		zap.String("reason", req.Reason),
	)
	return &out, nil
}

func (s *Service) AdjustWallet(ctx context.Context, req ledgerdomain.AdjustWalletRequest) (*ledgerdomain.Wallet, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	purpose := req.Purpose
	switch req.Direction {
	case ledgerdomain.DirectionCredit:
		if purpose == "" {
			purpose = ledgerdomain.PurposeTopUp
		}
	case ledgerdomain.DirectionDebit:
		if purpose == "" {
			purpose = ledgerdomain.PurposeWithdraw
		}
	default:
		return nil, ledgerdomain.ErrInvalidDirection
	}
	if !purpose.Valid() {
		return nil, ledgerdomain.ErrInvalidPurpose
	}

	var out ledgerdomain.Wallet
	err := s.store.WithLockedWallet(ctx, req.UserID, func(tx ledgerdomain.Tx, w *ledgerdomain.Wallet) error {
		entry := &ledgerdomain.WalletHistory{
			WalletID:    w.ID,
			UserID:      w.UserID,
			Direction:   req.Direction,
			Amount:      amount,
			Purpose:     purpose,
			Status:      ledgerdomain.StatusSuccess,
			Description: strings.TrimSpace(req.Description),
		}
		if ref := strings.TrimSpace(req.ReferenceID); ref != "" {
			entry.ReferenceID = &ref
		}

		if req.Direction == ledgerdomain.DirectionDebit {
			if w.Balance.LessThan(amount) {
				return ledgerdomain.ErrInsufficientBalance
			}
			w.Balance = w.Balance.Sub(amount)
		} else {
			w.Balance = w.Balance.Add(amount)
		}
		if err := tx.AppendWalletHistory(entry); err != nil {
			return err
		}
		out = *w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("wallet adjusted",
		zap.String("user_id", req.UserID),
		zap.String("direction", string(req.Direction)),
		zap.String("purpose", string(purpose)),
		zap.String("amount", amount.StringFixed(2)),
	)
	return &out, nil
}

func (s *Service) ReconcileWallet(ctx context.Context, userID string) (*ledgerdomain.Reconciliation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	return s.store.ReconcileWallet(ctx, userID)
}

func (s *Service) Stats(ctx context.Context) (*ledgerdomain.PurchaseStats, error) {
	return s.store.PurchaseStats(ctx)
}
