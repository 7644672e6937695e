package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config `optional:"true"`
}

type Store struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	currency string
}

func NewStore(p Params) ledgerdomain.Store {
	currency := strings.ToUpper(strings.TrimSpace(p.Config.Payment.Currency))
	if currency == "" {
		currency = "INR"
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Store{
		db:       p.DB,
		log:      p.Log.Named("ledger.store"),
		genID:    p.GenID,
		clock:    clk,
		currency: currency,
	}
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Store) Transaction(ctx context.Context, fn func(tx ledgerdomain.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&txStore{
			db:      db,
			store:   s,
			wallets: map[snowflake.ID]*walletLock{},
			credits: map[string]*creditsLock{},
		})
	})
}

func (s *Store) WithLockedWallet(ctx context.Context, userID string, fn func(tx ledgerdomain.Tx, w *ledgerdomain.Wallet) error) error {
	return s.Transaction(ctx, func(tx ledgerdomain.Tx) error {
		return tx.WithLockedWallet(userID, func(w *ledgerdomain.Wallet) error {
			return fn(tx, w)
		})
	})
}

func (s *Store) WithLockedUserCredits(ctx context.Context, userID string, fn func(tx ledgerdomain.Tx, c *ledgerdomain.UserCredits) error) error {
	return s.Transaction(ctx, func(tx ledgerdomain.Tx) error {
		return tx.WithLockedUserCredits(userID, func(c *ledgerdomain.UserCredits) error {
			return fn(tx, c)
		})
	})
}

type walletLock struct {
	userID string
	delta  decimal.Decimal
}

type creditsLock struct {
	usage int64
}

// txStore tracks which rows the transaction holds so appended history can
// be checked against the row it explains.
type txStore struct {
	db      *gorm.DB
	store   *Store
	wallets map[snowflake.ID]*walletLock
	credits map[string]*creditsLock
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ledgerdomain.ErrInternalConsistency, fmt.Sprintf(format, args...))
}

func (t *txStore) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *txStore) WithLockedWallet(userID string, fn func(w *ledgerdomain.Wallet) error) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ledgerdomain.ErrInvalidUser
	}

	w, err := t.lockWallet(userID)
	if err != nil {
		return err
	}
	if _, held := t.wallets[w.ID]; held {
		return inconsistent("wallet %s locked twice", w.ID)
	}
	lock := &walletLock{userID: userID, delta: decimal.Zero}
	t.wallets[w.ID] = lock
	defer delete(t.wallets, w.ID)

	walletID := w.ID
	before := w.Balance
	if err := fn(w); err != nil {
		return err
	}

	switch {
	case w.ID != walletID || w.UserID != userID:
		return inconsistent("wallet identity changed")
	case w.Balance.IsNegative():
		return inconsistent("wallet %s balance would be negative", walletID)
	case !w.Balance.Equal(before.Add(lock.delta)):
		return inconsistent("wallet %s balance moved %s but history recorded %s",
			walletID, w.Balance.Sub(before).String(), lock.delta.String())
	}
	if w.Balance.Equal(before) {
		return nil
	}

	w.UpdatedAt = t.store.now()
	return t.db.Model(&ledgerdomain.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]any{
			"balance":    w.Balance,
			"updated_at": w.UpdatedAt,
		}).Error
}

func (t *txStore) lockWallet(userID string) (*ledgerdomain.Wallet, error) {
	var w ledgerdomain.Wallet
	err := t.forUpdate().Where("user_id = ?", userID).Take(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := t.store.now()
	seed := ledgerdomain.Wallet{
		ID:        t.store.genID.Generate(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  t.store.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, err
	}
	if err := t.forUpdate().Where("user_id = ?", userID).Take(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (t *txStore) WithLockedUserCredits(userID string, fn func(c *ledgerdomain.UserCredits) error) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ledgerdomain.ErrInvalidUser
	}
	if _, held := t.credits[userID]; held {
		return inconsistent("credits for %s locked twice", userID)
	}

	c, err := t.lockCredits(userID)
	if err != nil {
		return err
	}
	lock := &creditsLock{}
	t.credits[userID] = lock
	defer delete(t.credits, userID)

	before := *c
	if err := fn(c); err != nil {
		return err
	}
	c.Recompute()

	switch {
	case c.ID != before.ID || c.UserID != before.UserID:
		return inconsistent("credits identity changed")
	case c.UsedCredits < before.UsedCredits:
		return inconsistent("used credits decreased for %s", userID)
	case c.UsedCredits-before.UsedCredits != lock.usage:
		return inconsistent("used credits moved %d but usage recorded %d", c.UsedCredits-before.UsedCredits, lock.usage)
	case c.TotalCredits < 0 || c.RemainingCredits < 0:
		return inconsistent("remaining credits would be negative for %s", userID)
	}
	if c.TotalCredits == before.TotalCredits && c.UsedCredits == before.UsedCredits && c.RemainingCredits == before.RemainingCredits {
		return nil
	}

	c.UpdatedAt = t.store.now()
	return t.db.Model(&ledgerdomain.UserCredits{}).
		Where("id = ?", c.ID).
		Updates(map[string]any{
			"total_credits":     c.TotalCredits,
			"used_credits":      c.UsedCredits,
			"remaining_credits": c.RemainingCredits,
			"updated_at":        c.UpdatedAt,
		}).Error
}

func (t *txStore) lockCredits(userID string) (*ledgerdomain.UserCredits, error) {
	var c ledgerdomain.UserCredits
	err := t.forUpdate().Where("user_id = ?", userID).Take(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := t.store.now()
	seed := ledgerdomain.UserCredits{
		ID:        t.store.genID.Generate(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, err
	}
	if err := t.forUpdate().Where("user_id = ?", userID).Take(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *txStore) WithLockedPurchase(paymentID string, fn func(p *ledgerdomain.CreditPurchase) error) error {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return ledgerdomain.ErrNotFound
	}

	var p ledgerdomain.CreditPurchase
	if err := t.forUpdate().Where("payment_id = ?", paymentID).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledgerdomain.ErrNotFound
		}
		return err
	}

	before := p
	if err := fn(&p); err != nil {
		return err
	}

	switch {
	case p.ID != before.ID || p.PaymentID != before.PaymentID || p.UserID != before.UserID:
		return inconsistent("purchase identity changed")
	case p.CreditsPurchased != before.CreditsPurchased || !p.TotalAmount.Equal(before.TotalAmount) || p.Method != before.Method:
		return inconsistent("purchase %s terms changed", p.PaymentID)
	case !ledgerdomain.CanTransition(before.Status, p.Status):
		return inconsistent("purchase %s cannot move from %s to %s", p.PaymentID, before.Status, p.Status)
	}
	if !purchaseMutated(before, p) {
		return nil
	}

	p.UpdatedAt = t.store.now()
	return t.db.Model(&ledgerdomain.CreditPurchase{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"status":             p.Status,
			"gateway_payment_id": p.GatewayPaymentID,
			"failure_reason":     p.FailureReason,
			"fulfilled_at":       p.FulfilledAt,
			"refunded_at":        p.RefundedAt,
			"updated_at":         p.UpdatedAt,
		}).Error
}

func purchaseMutated(a, b ledgerdomain.CreditPurchase) bool {
	return a.Status != b.Status ||
		!equalString(a.GatewayPaymentID, b.GatewayPaymentID) ||
		!equalString(a.FailureReason, b.FailureReason) ||
		!equalTime(a.FulfilledAt, b.FulfilledAt) ||
		!equalTime(a.RefundedAt, b.RefundedAt)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (t *txStore) CreatePurchase(p *ledgerdomain.CreditPurchase) error {
	if p == nil {
		return ledgerdomain.ErrInternalConsistency
	}
	p.UserID = strings.TrimSpace(p.UserID)
	p.PaymentID = strings.TrimSpace(p.PaymentID)
	switch {
	case p.UserID == "":
		return ledgerdomain.ErrInvalidUser
	case p.CreditsPurchased <= 0:
		return ledgerdomain.ErrInvalidCredits
	case p.TotalAmount.IsNegative() || p.RatePerCredit.IsNegative():
		return ledgerdomain.ErrInvalidAmount
	case p.PaymentID == "":
		return inconsistent("purchase without payment id")
	case p.Method != ledgerdomain.MethodOnline && p.Method != ledgerdomain.MethodWallet:
		return inconsistent("unknown purchase method %q", p.Method)
	}
	if p.Status == "" {
		p.Status = ledgerdomain.StatusPending
	}
	if p.Currency == "" {
		p.Currency = t.store.currency
	}

	now := t.store.now()
	if p.ID == 0 {
		p.ID = t.store.genID.Generate()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := t.db.Create(p).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ledgerdomain.ErrDuplicatePurchase
		}
		return err
	}
	return nil
}

func (t *txStore) FindPurchase(paymentID string) (*ledgerdomain.CreditPurchase, error) {
	var p ledgerdomain.CreditPurchase
	if err := t.db.Where("payment_id = ?", strings.TrimSpace(paymentID)).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *txStore) AppendWalletHistory(h *ledgerdomain.WalletHistory) error {
	if h == nil {
		return ledgerdomain.ErrInternalConsistency
	}
	lock, held := t.wallets[h.WalletID]
	if !held {
		return inconsistent("history appended for unlocked wallet %s", h.WalletID)
	}
	if h.UserID == "" {
		h.UserID = lock.userID
	}
	switch {
	case h.UserID != lock.userID:
		return inconsistent("history user does not own wallet %s", h.WalletID)
	case h.Direction != ledgerdomain.DirectionCredit && h.Direction != ledgerdomain.DirectionDebit:
		return ledgerdomain.ErrInvalidDirection
	case !h.Purpose.Valid():
		return ledgerdomain.ErrInvalidPurpose
	case !h.Amount.IsPositive():
		return ledgerdomain.ErrInvalidAmount
	}
	if h.Status == "" {
		h.Status = ledgerdomain.StatusSuccess
	}

	h.ID = t.store.genID.Generate()
	h.CreatedAt = t.store.now()
	if err := t.db.Create(h).Error; err != nil {
		return err
	}
	if h.Status == ledgerdomain.StatusSuccess {
		lock.delta = lock.delta.Add(h.SignedAmount())
	}
	return nil
}

func (t *txStore) AppendCreditUsage(u *ledgerdomain.CreditUsageHistory) error {
	if u == nil {
		return ledgerdomain.ErrInternalConsistency
	}
	lock, held := t.credits[u.UserID]
	if !held {
		return inconsistent("usage appended without credits lock for %s", u.UserID)
	}
	if u.CreditsUsed <= 0 {
		return ledgerdomain.ErrInvalidCredits
	}

	u.ID = t.store.genID.Generate()
	u.CreatedAt = t.store.now()
	if err := t.db.Create(u).Error; err != nil {
		return err
	}
	lock.usage += u.CreditsUsed
	return nil
}

func (t *txStore) IncrementDailyUsage(userID, day string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ledgerdomain.ErrInvalidUser
	}

	now := t.store.now()
	row := ledgerdomain.DailyUsageCounter{
		ID:        t.store.genID.Generate(),
		UserID:    userID,
		UsageDate: day,
		Uses:      1,
		UpdatedAt: now,
	}
	if err := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "usage_date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"uses":       gorm.Expr("daily_usage_counters.uses + 1"),
			"updated_at": now,
		}),
	}).Create(&row).Error; err != nil {
		return 0, err
	}

	var uses int64
	if err := t.db.Model(&ledgerdomain.DailyUsageCounter{}).
		Select("uses").
		Where("user_id = ? AND usage_date = ?", userID, day).
		Scan(&uses).Error; err != nil {
		return 0, err
	}
	return uses, nil
}
