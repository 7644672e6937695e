package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/creditledger/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (Service, *ServiceImpl) {
	t.Helper()
	db := dbtest.Open(t)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	svc := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
	return svc, svc.(*ServiceImpl)
}

func TestAuthorizeAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	admin := Actor{UserID: "ops-1", Role: "Admin"}

	for _, tc := range []struct{ object, action string }{
		{ObjectPricing, ActionPricingUpdate},
		{ObjectBundle, ActionBundleCreate},
		{ObjectCredits, ActionCreditsGrant},
		{ObjectCredits, ActionCreditsUsageList},
		{ObjectWallet, ActionWalletAdjust},
		{ObjectPurchase, ActionPurchaseList},
		{ObjectPurchase, ActionPurchaseRefund},
		{ObjectStats, ActionStatsView},
	} {
		assert.NoError(t, svc.Authorize(ctx, admin, tc.object, tc.action), tc.action)
	}
}

func TestAuthorizeUserForbidden(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Authorize(context.Background(), Actor{UserID: "u1"}, ObjectPurchase, ActionPurchaseRefund)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeRoleChangeReplacesBinding(t *testing.T) {
	svc, impl := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, Actor{UserID: "u1", Role: RoleAdmin}, ObjectStats, ActionStatsView))
	err := svc.Authorize(ctx, Actor{UserID: "u1", Role: RoleUser}, ObjectStats, ActionStatsView)
	assert.ErrorIs(t, err, ErrForbidden)

	rules, err := impl.enforcer.GetFilteredGroupingPolicy(0, "user:u1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "role:user", rules[0][1])
}

func TestAuthorizeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, Actor{}, ObjectStats, ActionStatsView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{UserID: "u1", Role: "root"}, ObjectStats, ActionStatsView), ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{UserID: "u1"}, "", ActionStatsView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{UserID: "u1"}, ObjectStats, " "), ErrInvalidAction)
}

func TestSeedPoliciesIsRepeatable(t *testing.T) {
	db := dbtest.Open(t)
	_, err := NewEnforcer(db)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 10)
}
