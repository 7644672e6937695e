package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/ledger/repository"
	"github.com/smallbiznis/creditledger/internal/testutil/dbtest"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type meterHarness struct {
	svc   usagedomain.Service
	store ledgerdomain.Store
	db    *gorm.DB
	clock *clock.FakeClock
}

func newMeterHarness(t *testing.T, limit int64) *meterHarness {
	t.Helper()
	db := dbtest.Open(t, ledgerdomain.Models()...)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	store := repository.NewStore(repository.Params{DB: db, Log: zap.NewNop(), GenID: dbtest.Node(t), Clock: clk})

	cfg := config.DefaultMeteringConfig()
	cfg.FreeDailyLimit = limit
	return &meterHarness{
		svc: NewService(ServiceParam{
			Store:    store,
			Log:      zap.NewNop(),
			Clock:    clk,
			Metering: config.NewStaticMeteringConfigHolder(cfg),
		}),
		store: store,
		db:    db,
		clock: clk,
	}
}

func (h *meterHarness) grant(t *testing.T, userID string, credits int64) {
	t.Helper()
	require.NoError(t, h.store.WithLockedUserCredits(context.Background(), userID, func(_ ledgerdomain.Tx, c *ledgerdomain.UserCredits) error {
		c.TotalCredits += credits
		return nil
	}))
}

// use runs one metered call that succeeds.
func (h *meterHarness) use(t *testing.T, userID string) usagedomain.Mode {
	t.Helper()
	adm, err := h.svc.Check(context.Background(), userID)
	require.NoError(t, err)
	if adm.Allowed() {
		require.NoError(t, h.svc.Commit(context.Background(), userID, adm.Mode, "call"))
	}
	return adm.Mode
}

func TestCheckFreeThenBlocked(t *testing.T) {
	h := newMeterHarness(t, 5)

	for i := 0; i < 5; i++ {
		assert.Equal(t, usagedomain.ModeFree, h.use(t, "u1"), "use %d", i+1)
	}
	adm, err := h.svc.Check(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, usagedomain.ModeBlocked, adm.Mode)
	assert.Equal(t, int64(5), adm.FreeUsedToday)
	assert.False(t, adm.Allowed())
}

func TestCheckPaidAfterFreeAllowance(t *testing.T) {
	h := newMeterHarness(t, 5)
	for i := 0; i < 5; i++ {
		h.use(t, "u1")
	}
	h.grant(t, "u1", 10)

	assert.Equal(t, usagedomain.ModePaid, h.use(t, "u1"))

	credits, err := h.store.GetUserCredits(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), credits.UsedCredits)
	assert.Equal(t, int64(9), credits.RemainingCredits)
	dbtest.AssertCount(t, h.db, "SELECT count(*) FROM credit_usage_histories WHERE user_id = ?", 1, "u1")
}

func TestFreeUsesDoNotTouchCredits(t *testing.T) {
	h := newMeterHarness(t, 5)
	h.grant(t, "u1", 3)

	assert.Equal(t, usagedomain.ModeFree, h.use(t, "u1"))

	credits, err := h.store.GetUserCredits(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), credits.RemainingCredits)
	dbtest.AssertCount(t, h.db, "SELECT count(*) FROM credit_usage_histories", 0)
}

func TestDiscardChargesNothing(t *testing.T) {
	h := newMeterHarness(t, 0)
	h.grant(t, "u1", 2)
	ctx := context.Background()

	adm, err := h.svc.Check(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, usagedomain.ModePaid, adm.Mode)
	h.svc.Discard(ctx, "u1", adm.Mode)

	credits, err := h.store.GetUserCredits(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), credits.UsedCredits)
	assert.Equal(t, int64(2), credits.RemainingCredits)
	dbtest.AssertCount(t, h.db, "SELECT count(*) FROM credit_usage_histories", 0)
	dbtest.AssertCount(t, h.db, "SELECT count(*) FROM daily_usage_counters", 0)
}

func TestCheckIsReadOnly(t *testing.T) {
	h := newMeterHarness(t, 5)
	for i := 0; i < 3; i++ {
		_, err := h.svc.Check(context.Background(), "u1")
		require.NoError(t, err)
	}
	dbtest.AssertCount(t, h.db, "SELECT count(*) FROM daily_usage_counters", 0)
	dbtest.AssertCount(t, h.db, "SELECT count(*) FROM user_credits", 0)
}

func TestFreeAllowanceResetsNextDay(t *testing.T) {
	h := newMeterHarness(t, 2)
	h.use(t, "u1")
	h.use(t, "u1")
	assert.Equal(t, usagedomain.ModeBlocked, h.use(t, "u1"))

	h.clock.Advance(24 * time.Hour)
	adm, err := h.svc.Check(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, usagedomain.ModeFree, adm.Mode)
	assert.Equal(t, int64(0), adm.FreeUsedToday)
	assert.Equal(t, "2026-03-02", adm.Day)
}

func TestPaidCommitWithoutCreditsChargesNothing(t *testing.T) {
	h := newMeterHarness(t, 0)
	h.grant(t, "u1", 1)
	ctx := context.Background()

	// Two admissions race for the last credit.
	first, err := h.svc.Check(ctx, "u1")
	require.NoError(t, err)
	second, err := h.svc.Check(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, usagedomain.ModePaid, first.Mode)
	require.Equal(t, usagedomain.ModePaid, second.Mode)

	require.NoError(t, h.svc.Commit(ctx, "u1", first.Mode, "a"))
	err = h.svc.Commit(ctx, "u1", second.Mode, "b")
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)

	credits, err := h.store.GetUserCredits(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), credits.UsedCredits)
	assert.Equal(t, int64(0), credits.RemainingCredits)
	dbtest.AssertCount(t, h.db, "SELECT count(*) FROM credit_usage_histories", 1)
}

func TestConcurrentPaidCommitsNeverOverdraw(t *testing.T) {
	h := newMeterHarness(t, 0)
	h.grant(t, "u1", 5)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.svc.Commit(context.Background(), "u1", usagedomain.ModePaid, "")
		}(i)
	}
	wg.Wait()

	charged := 0
	for _, err := range errs {
		if err == nil {
			charged++
			continue
		}
		assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)
	}
	assert.Equal(t, 5, charged)

	credits, err := h.store.GetUserCredits(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), credits.UsedCredits)
	assert.Equal(t, int64(0), credits.RemainingCredits)
}

func TestCommitRejectsBlockedAndUnknownModes(t *testing.T) {
	h := newMeterHarness(t, 5)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.Commit(ctx, "u1", usagedomain.ModeBlocked, ""), usagedomain.ErrUsageBlocked)
	assert.ErrorIs(t, h.svc.Commit(ctx, "u1", usagedomain.Mode("bogus"), ""), usagedomain.ErrInvalidMode)
	assert.ErrorIs(t, h.svc.Commit(ctx, " ", usagedomain.ModeFree, ""), ledgerdomain.ErrInvalidUser)
	_, err := h.svc.Check(ctx, "")
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidUser)
}

func TestStatus(t *testing.T) {
	h := newMeterHarness(t, 5)
	h.grant(t, "u1", 4)
	h.use(t, "u1")
	h.use(t, "u1")

	status, err := h.svc.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, usagedomain.ModeFree, status.Mode)
	assert.Equal(t, int64(2), status.FreeUsedToday)
	assert.Equal(t, int64(3), status.FreeRemaining)
	assert.Equal(t, int64(4), status.Credits.RemainingCredits)
}
