package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/creditledger/internal/payment/domain"
	"github.com/smallbiznis/creditledger/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestEventRecordLifecycle(t *testing.T) {
	db := dbtest.Open(t, domain.Models()...)
	node := dbtest.Node(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	missing, err := repo.FindEvent(ctx, db, "razorpay", "evt_1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	first := &domain.EventRecord{
		ID:              node.Generate(),
		Provider:        "razorpay",
		ProviderEventID: "evt_1",
		EventType:       domain.EventTypePaymentCaptured,
		OrderID:         "order_1",
		Payload:         datatypes.JSON(`{"event":"payment.captured"}`),
		ReceivedAt:      now,
	}
	inserted, err := repo.InsertEvent(ctx, db, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := *first
	again.ID = node.Generate()
	inserted, err = repo.InsertEvent(ctx, db, &again)
	require.NoError(t, err)
	assert.False(t, inserted)
	dbtest.AssertCount(t, db, "SELECT COUNT(*) FROM payment_events", 1)

	found, err := repo.FindEvent(ctx, db, " razorpay ", "evt_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
	assert.Nil(t, found.ProcessedAt)

	require.NoError(t, repo.MarkProcessed(ctx, db, first.ID, now.Add(time.Minute)))
	found, err = repo.FindEvent(ctx, db, "razorpay", "evt_1")
	require.NoError(t, err)
	require.NotNil(t, found.ProcessedAt)
	assert.True(t, found.ProcessedAt.Equal(now.Add(time.Minute)))
}
