package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"gorm.io/gorm"
)

const defaultListLimit = 50

// GetWallet returns an unsaved zero wallet for users who never had one.
func (s *Store) GetWallet(ctx context.Context, userID string) (*ledgerdomain.Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	var w ledgerdomain.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ledgerdomain.Wallet{UserID: userID, Balance: decimal.Zero, Currency: s.currency}, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) GetUserCredits(ctx context.Context, userID string) (*ledgerdomain.UserCredits, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	var c ledgerdomain.UserCredits
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ledgerdomain.UserCredits{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetDailyUsage(ctx context.Context, userID, day string) (int64, error) {
	var uses int64
	err := s.db.WithContext(ctx).
		Model(&ledgerdomain.DailyUsageCounter{}).
		Select("uses").
		Where("user_id = ? AND usage_date = ?", strings.TrimSpace(userID), day).
		Scan(&uses).Error
	return uses, err
}

func (s *Store) GetPurchase(ctx context.Context, paymentID string) (*ledgerdomain.CreditPurchase, error) {
	var p ledgerdomain.CreditPurchase
	err := s.db.WithContext(ctx).Where("payment_id = ?", strings.TrimSpace(paymentID)).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgerdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPurchases(ctx context.Context, filter ledgerdomain.PurchaseFilter) ([]ledgerdomain.CreditPurchase, error) {
	stmt := s.db.WithContext(ctx).Model(&ledgerdomain.CreditPurchase{})
	if filter.UserID != "" {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Method != "" {
		stmt = stmt.Where("method = ?", filter.Method)
	}
	if !filter.CreatedBefore.IsZero() {
		stmt = stmt.Where("created_at < ?", filter.CreatedBefore)
	}
	if !filter.CreatedAfter.IsZero() {
		stmt = stmt.Where("created_at > ?", filter.CreatedAfter)
	}
	if filter.BeforeID != 0 {
		if filter.Ascending {
			stmt = stmt.Where("id > ?", filter.BeforeID)
		} else {
			stmt = stmt.Where("id < ?", filter.BeforeID)
		}
	}
	if filter.Ascending {
		stmt = stmt.Order("id ASC")
	} else {
		stmt = stmt.Order("id DESC")
	}

	var out []ledgerdomain.CreditPurchase
	err := stmt.Limit(listLimit(filter.Limit)).Find(&out).Error
	return out, err
}

func (s *Store) ListWalletHistory(ctx context.Context, filter ledgerdomain.HistoryFilter) ([]ledgerdomain.WalletHistory, error) {
	stmt := s.db.WithContext(ctx).Where("user_id = ?", filter.UserID)
	if filter.BeforeID != 0 {
		stmt = stmt.Where("id < ?", filter.BeforeID)
	}
	var out []ledgerdomain.WalletHistory
	err := stmt.Order("id DESC").Limit(listLimit(filter.Limit)).Find(&out).Error
	return out, err
}

// ListCreditUsage lists usage newest first. An empty UserID lists every
// user.
func (s *Store) ListCreditUsage(ctx context.Context, filter ledgerdomain.HistoryFilter) ([]ledgerdomain.CreditUsageHistory, error) {
	stmt := s.db.WithContext(ctx).Model(&ledgerdomain.CreditUsageHistory{})
	if filter.UserID != "" {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if filter.BeforeID != 0 {
		stmt = stmt.Where("id < ?", filter.BeforeID)
	}
	var out []ledgerdomain.CreditUsageHistory
	err := stmt.Order("id DESC").Limit(listLimit(filter.Limit)).Find(&out).Error
	return out, err
}

const reconcileSelect = `SELECT w.id AS wallet_id, w.user_id AS user_id, w.balance AS balance,
		COALESCE(SUM(CASE
			WHEN h.direction = 'credit' THEN h.amount
			WHEN h.direction = 'debit' THEN -h.amount
			ELSE 0 END), 0) AS ledger_balance
	FROM wallets w
	LEFT JOIN wallet_histories h ON h.wallet_id = w.id AND h.status = 'success'`

func (s *Store) ReconcileWallet(ctx context.Context, userID string) (*ledgerdomain.Reconciliation, error) {
	var rows []ledgerdomain.Reconciliation
	err := s.db.WithContext(ctx).Raw(
		reconcileSelect+` WHERE w.user_id = ? GROUP BY w.id, w.user_id, w.balance`,
		strings.TrimSpace(userID),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ledgerdomain.ErrNotFound
	}
	r := normalizeReconciliation(rows[0])
	return &r, nil
}

// ReconcileWallets walks wallets in id order starting after afterWalletID.
func (s *Store) ReconcileWallets(ctx context.Context, afterWalletID snowflake.ID, limit int) ([]ledgerdomain.Reconciliation, error) {
	var rows []ledgerdomain.Reconciliation
	err := s.db.WithContext(ctx).Raw(
		reconcileSelect+` WHERE w.id > ? GROUP BY w.id, w.user_id, w.balance ORDER BY w.id ASC LIMIT ?`,
		afterWalletID,
		listLimit(limit),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i] = normalizeReconciliation(rows[i])
	}
	return rows, nil
}

// normalizeReconciliation rounds both sides to minor units; sqlite sums
// come back as floats.
func normalizeReconciliation(r ledgerdomain.Reconciliation) ledgerdomain.Reconciliation {
	r.Balance = r.Balance.Round(2)
	r.LedgerBalance = r.LedgerBalance.Round(2)
	return r
}

func (s *Store) PurchaseStats(ctx context.Context) (*ledgerdomain.PurchaseStats, error) {
	var totals struct {
		Revenue decimal.Decimal
		Credits int64
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_amount), 0) AS revenue, COALESCE(SUM(credits_purchased), 0) AS credits
		FROM credit_purchases WHERE status = ?`,
		ledgerdomain.StatusSuccess,
	).Scan(&totals).Error; err != nil {
		return nil, err
	}

	var used struct{ Used int64 }
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(used_credits), 0) AS used FROM user_credits`,
	).Scan(&used).Error; err != nil {
		return nil, err
	}

	var byStatus []struct {
		Status ledgerdomain.Status
		Count  int64
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count FROM credit_purchases GROUP BY status`,
	).Scan(&byStatus).Error; err != nil {
		return nil, err
	}

	stats := &ledgerdomain.PurchaseStats{
		Revenue:          totals.Revenue.Round(2),
		CreditsPurchased: totals.Credits,
		CreditsUsed:      used.Used,
		ByStatus:         make(map[ledgerdomain.Status]int64, len(byStatus)),
	}
	for _, row := range byStatus {
		stats.ByStatus[row.Status] = row.Count
	}
	return stats, nil
}

func listLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > 500:
		return 500
	default:
		return limit
	}
}
