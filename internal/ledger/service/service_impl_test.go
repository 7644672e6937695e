package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/ledger/repository"
	"github.com/smallbiznis/creditledger/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) ledgerdomain.Service {
	t.Helper()
	db := dbtest.Open(t, ledgerdomain.Models()...)
	store := repository.NewStore(repository.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
	return NewService(Params{Store: store, Log: zap.NewNop()})
}

func TestGrantCredits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.GrantCredits(ctx, ledgerdomain.GrantCreditsRequest{UserID: "user-1", Credits: 10, Reason: "support"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.TotalCredits)
	assert.Equal(t, int64(10), c.RemainingCredits)

	_, err = svc.GrantCredits(ctx, ledgerdomain.GrantCreditsRequest{UserID: "user-1", Credits: 0})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidCredits)
	_, err = svc.GrantCredits(ctx, ledgerdomain.GrantCreditsRequest{Credits: 3})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidUser)
}

func TestAdjustWallet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	w, err := svc.AdjustWallet(ctx, ledgerdomain.AdjustWalletRequest{
		UserID:    "user-1",
		Direction: ledgerdomain.DirectionCredit,
		Amount:    decimal.RequireFromString("100.005"),
	})
	require.NoError(t, err)
	assert.Equal(t, "100.01", w.Balance.StringFixed(2))

	_, err = svc.AdjustWallet(ctx, ledgerdomain.AdjustWalletRequest{
		UserID:    "user-1",
		Direction: ledgerdomain.DirectionDebit,
		Amount:    decimal.NewFromInt(500),
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)

	w, err = svc.AdjustWallet(ctx, ledgerdomain.AdjustWalletRequest{
		UserID:      "user-1",
		Direction:   ledgerdomain.DirectionDebit,
		Amount:      decimal.NewFromInt(40),
		ReferenceID: "ticket-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "60.01", w.Balance.StringFixed(2))

	history, err := svc.ListWalletHistory(ctx, ledgerdomain.HistoryFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledgerdomain.PurposeWithdraw, history[0].Purpose)
	assert.Equal(t, ledgerdomain.PurposeTopUp, history[1].Purpose)

	r, err := svc.ReconcileWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, r.Consistent(), "balance %s ledger %s", r.Balance, r.LedgerBalance)
}

func TestAdjustWalletRejectsBadInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  ledgerdomain.AdjustWalletRequest
		want error
	}{
		{"zero amount", ledgerdomain.AdjustWalletRequest{UserID: "u", Direction: ledgerdomain.DirectionCredit}, ledgerdomain.ErrInvalidAmount},
		{"bad direction", ledgerdomain.AdjustWalletRequest{UserID: "u", Direction: "sideways", Amount: decimal.NewFromInt(1)}, ledgerdomain.ErrInvalidDirection},
		{"bad purpose", ledgerdomain.AdjustWalletRequest{UserID: "u", Direction: ledgerdomain.DirectionCredit, Amount: decimal.NewFromInt(1), Purpose: "gift"}, ledgerdomain.ErrInvalidPurpose},
		{"no user", ledgerdomain.AdjustWalletRequest{Direction: ledgerdomain.DirectionCredit, Amount: decimal.NewFromInt(1)}, ledgerdomain.ErrInvalidUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AdjustWallet(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
