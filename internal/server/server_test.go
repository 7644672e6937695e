package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	assistantdomain "github.com/smallbiznis/creditledger/internal/assistant/domain"
	assistantrepo "github.com/smallbiznis/creditledger/internal/assistant/repository"
	assistantservice "github.com/smallbiznis/creditledger/internal/assistant/service"
	"github.com/smallbiznis/creditledger/internal/authorization"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/creditledger/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/creditledger/internal/catalog/service"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/creditledger/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/creditledger/internal/ledger/service"
	"github.com/smallbiznis/creditledger/internal/observability"
	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/creditledger/internal/payment/repository"
	"github.com/smallbiznis/creditledger/internal/payment/webhook"
	purchasedomain "github.com/smallbiznis/creditledger/internal/purchase/domain"
	purchaseservice "github.com/smallbiznis/creditledger/internal/purchase/service"
	"github.com/smallbiznis/creditledger/internal/ratelimit"
	"github.com/smallbiznis/creditledger/internal/testutil/dbtest"
	"github.com/smallbiznis/creditledger/internal/testutil/gatewaytest"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	usageservice "github.com/smallbiznis/creditledger/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInference struct {
	reply string
	err   error
}

func (f *fakeInference) Model() string { return "fake-model" }

func (f *fakeInference) Generate(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type testServer struct {
	engine    *gin.Engine
	gateway   *gatewaytest.Gateway
	inference *fakeInference
	clock     *clock.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	models := append(ledgerdomain.Models(), catalogdomain.Models()...)
	models = append(models, paymentdomain.Models()...)
	models = append(models, assistantdomain.Models()...)
	db := dbtest.Open(t, models...)
	node := dbtest.Node(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	store := ledgerrepo.NewStore(ledgerrepo.Params{DB: db, Log: log, GenID: node, Clock: clk})
	catalog := catalogservice.New(catalogservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  catalogrepo.Provide(),
		Clock: clk,
	})
	gateway := gatewaytest.New(t)
	purchases := purchaseservice.NewService(purchaseservice.Params{
		Store:   store,
		Catalog: catalog,
		Gateway: gateway,
		Log:     log,
		Clock:   clk,
	})
	dispatcher := webhook.NewService(webhook.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      paymentrepo.Provide(),
		Gateway:   gateway,
		Purchases: purchases,
	})
	usage := usageservice.NewService(usageservice.ServiceParam{Store: store, Log: log, Clock: clk})
	inference := &fakeInference{reply: "Photosynthesis turns light into sugar."}
	assistant := assistantservice.New(assistantservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      assistantrepo.Provide(),
		Usage:     usage,
		Inference: inference,
	})
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	NewServer(ServerParams{
		Gin: engine,
		Cfg: config.Config{Identity: config.IdentityConfig{
			UserHeader: "X-User-ID",
			RoleHeader: "X-User-Role",
		}},
		Log:          log,
		AuthzSvc:     authz,
		CatalogSvc:   catalog,
		LedgerSvc:    ledgerservice.NewService(ledgerservice.Params{Store: store, Log: log}),
		PurchaseSvc:  purchases,
		Dispatcher:   dispatcher,
		UsageSvc:     usage,
		AssistantSvc: assistant,
	})

	return &testServer{engine: engine, gateway: gateway, inference: inference, clock: clk}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func asUser(userID string) map[string]string {
	return map[string]string{"X-User-ID": userID}
}

func asAdmin(userID string) map[string]string {
	return map[string]string{"X-User-ID": userID, "X-User-Role": "admin"}
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out), rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func (s *testServer) createOrder(t *testing.T, userID string, credits int64) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/credits/orders", gin.H{"credits": credits}, asUser(userID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var order purchasedomain.OrderResponse
	decodeData(t, rec, &order)
	require.NotEmpty(t, order.OrderID)
	return order.OrderID
}

func (s *testServer) remainingCredits(t *testing.T, userID string) int64 {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/credits", nil, asUser(userID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Credits ledgerdomain.UserCredits `json:"credits"`
	}
	decodeData(t, rec, &out)
	return out.Credits.RemainingCredits
}

func TestHealthAndFallback(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestUserRoutesRequireIdentity(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/credits", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestCatalogRoutes(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPatch, "/admin/credits/pricing", gin.H{"rate_per_credit": "2.50"}, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/admin/credits/bundles", gin.H{"name": "Starter", "credits": 50, "price": "99.00"}, asAdmin("ops"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var bundle catalogdomain.CreditBundle
	decodeData(t, rec, &bundle)
	assert.Equal(t, "starter", bundle.Slug)

	rec = srv.do(t, http.MethodPost, "/admin/credits/bundles", gin.H{"name": "Starter", "credits": 50, "price": "99.00"}, asAdmin("ops"))
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/credits/pricing", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var pricing catalogdomain.CreditPricing
	decodeData(t, rec, &pricing)
	assert.True(t, pricing.RatePerCredit.Equal(decimal.RequireFromString("2.50")))

	rec = srv.do(t, http.MethodDelete, "/admin/credits/bundles/"+bundle.ID.String(), nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/credits/bundles", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var bundles []catalogdomain.CreditBundle
	decodeData(t, rec, &bundles)
	assert.Empty(t, bundles)
}

func TestAdminRoutesRejectUsers(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/admin/users/user-1/credits/grant", gin.H{"credits": 10}, asUser("user-1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)
	assert.Equal(t, int64(0), srv.remainingCredits(t, "user-1"))
}

func TestAdminListsCreditUsageAcrossUsers(t *testing.T) {
	srv := newTestServer(t)
	ask := gin.H{"message": "What is photosynthesis?"}

	for _, userID := range []string{"user-1", "user-2"} {
		rec := srv.do(t, http.MethodPost, "/admin/users/"+userID+"/credits/grant", gin.H{"credits": 5}, asAdmin("ops"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		for i := 0; i < 6; i++ {
			rec = srv.do(t, http.MethodPost, "/api/assistant/ask", ask, asUser(userID))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}
	}

	rec := srv.do(t, http.MethodGet, "/admin/credits/usage", nil, asUser("user-1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodGet, "/admin/credits/usage", nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var all []ledgerdomain.CreditUsageHistory
	decodeData(t, rec, &all)
	require.Len(t, all, 2)
	assert.Equal(t, "user-2", all[0].UserID)
	assert.Equal(t, "user-1", all[1].UserID)

	rec = srv.do(t, http.MethodGet, "/admin/credits/usage?limit=1", nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page []ledgerdomain.CreditUsageHistory
	decodeData(t, rec, &page)
	require.Len(t, page, 1)

	rec = srv.do(t, http.MethodGet, "/admin/credits/usage?before="+page[0].ID.String(), nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &page)
	require.Len(t, page, 1)
	assert.Equal(t, "user-1", page[0].UserID)

	rec = srv.do(t, http.MethodGet, "/admin/credits/usage?user_id=user-1", nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var mine []ledgerdomain.CreditUsageHistory
	decodeData(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(1), mine[0].CreditsUsed)

	rec = srv.do(t, http.MethodGet, "/admin/credits/usage?limit=0", nil, asAdmin("ops"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListsPurchasesAcrossUsers(t *testing.T) {
	srv := newTestServer(t)
	srv.createOrder(t, "user-1", 10)
	srv.createOrder(t, "user-2", 20)
	latest := srv.createOrder(t, "user-1", 30)

	rec := srv.do(t, http.MethodGet, "/admin/purchases", nil, asUser("user-1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodGet, "/admin/purchases?page_size=2", nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first purchasedomain.ListResponse
	decodeData(t, rec, &first)
	require.Len(t, first.Purchases, 2)
	assert.Equal(t, latest, first.Purchases[0].PaymentID)
	assert.Equal(t, "user-2", first.Purchases[1].UserID)
	require.True(t, first.PageInfo.HasMore)
	require.NotEmpty(t, first.PageInfo.NextPageToken)

	rec = srv.do(t, http.MethodGet, "/admin/purchases?page_size=2&page_token="+first.PageInfo.NextPageToken, nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second purchasedomain.ListResponse
	decodeData(t, rec, &second)
	require.Len(t, second.Purchases, 1)
	assert.Equal(t, int64(10), second.Purchases[0].CreditsPurchased)
	assert.False(t, second.PageInfo.HasMore)

	rec = srv.do(t, http.MethodGet, "/admin/purchases?user_id=user-2&status=pending", nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var filtered purchasedomain.ListResponse
	decodeData(t, rec, &filtered)
	require.Len(t, filtered.Purchases, 1)
	assert.Equal(t, int64(20), filtered.Purchases[0].CreditsPurchased)

	rec = srv.do(t, http.MethodGet, "/admin/purchases?status=bogus", nil, asAdmin("ops"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderConfirmedByClientAndWebhookGrantsOnce(t *testing.T) {
	srv := newTestServer(t)
	orderID := srv.createOrder(t, "user-1", 10)

	verify := gin.H{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  gatewaytest.PaymentSignature(orderID, "pay_1"),
	}
	rec := srv.do(t, http.MethodPost, "/api/credits/orders/verify", verify, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first struct {
		Result   purchasedomain.FulfillResult `json:"result"`
		Purchase ledgerdomain.CreditPurchase  `json:"purchase"`
	}
	decodeData(t, rec, &first)
	assert.Equal(t, purchasedomain.FulfillSucceeded, first.Result)
	assert.Equal(t, ledgerdomain.StatusSuccess, first.Purchase.Status)

	payload, headers := gatewaytest.CapturedWebhook(orderID, "pay_1")
	hdrs := map[string]string{"X-Razorpay-Signature": headers.Get("X-Razorpay-Signature")}
	rec = srv.do(t, http.MethodPost, "/api/payments/webhooks/razorpay", payload, hdrs)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/credits/orders/verify", verify, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again struct {
		Result purchasedomain.FulfillResult `json:"result"`
	}
	decodeData(t, rec, &again)
	assert.Equal(t, purchasedomain.FulfillAlreadyProcessed, again.Result)

	assert.Equal(t, int64(10), srv.remainingCredits(t, "user-1"))
}

func TestVerifyRejectsForgedSignature(t *testing.T) {
	srv := newTestServer(t)
	orderID := srv.createOrder(t, "user-1", 10)

	rec := srv.do(t, http.MethodPost, "/api/credits/orders/verify", gin.H{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "forged",
	}, asUser("user-1"))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_signature", payload.Errors[0].Code)
	assert.Equal(t, int64(0), srv.remainingCredits(t, "user-1"))
}

func TestVerifyRejectsOtherUsersOrder(t *testing.T) {
	srv := newTestServer(t)
	orderID := srv.createOrder(t, "user-1", 10)

	rec := srv.do(t, http.MethodPost, "/api/credits/orders/verify", gin.H{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  gatewaytest.PaymentSignature(orderID, "pay_1"),
	}, asUser("user-2"))
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestCreateOrderGatewayDown(t *testing.T) {
	srv := newTestServer(t)
	srv.gateway.FailWith(paymentdomain.ErrGatewayUnavailable)

	rec := srv.do(t, http.MethodPost, "/api/credits/orders", gin.H{"credits": 10}, asUser("user-1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "gateway_unavailable", decodeError(t, rec).Type)

	rec = srv.do(t, http.MethodGet, "/api/credits/purchases", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var list purchasedomain.ListResponse
	decodeData(t, rec, &list)
	assert.Empty(t, list.Purchases)
}

func TestWalletPurchaseFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/credits/wallet-purchase", gin.H{"credits": 10}, asUser("user-1"))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "insufficient_balance", decodeError(t, rec).Type)

	rec = srv.do(t, http.MethodPost, "/admin/users/user-1/wallet/adjust", gin.H{"direction": "credit", "amount": "100.00"}, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	headers := asUser("user-1")
	headers[headerIdempotencyKey] = "checkout-42"
	rec = srv.do(t, http.MethodPost, "/api/credits/wallet-purchase", gin.H{"credits": 10}, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first purchasedomain.WalletPurchaseResponse
	decodeData(t, rec, &first)
	assert.Equal(t, purchasedomain.FulfillSucceeded, first.Result)
	assert.True(t, first.Balance.Equal(decimal.NewFromInt(90)), first.Balance.String())

	rec = srv.do(t, http.MethodPost, "/api/credits/wallet-purchase", gin.H{"credits": 10}, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var retry purchasedomain.WalletPurchaseResponse
	decodeData(t, rec, &retry)
	assert.Equal(t, purchasedomain.FulfillAlreadyProcessed, retry.Result)

	rec = srv.do(t, http.MethodGet, "/api/wallet", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var wallet struct {
		Wallet  ledgerdomain.Wallet          `json:"wallet"`
		History []ledgerdomain.WalletHistory `json:"history"`
	}
	decodeData(t, rec, &wallet)
	assert.True(t, wallet.Wallet.Balance.Equal(decimal.NewFromInt(90)))
	assert.Len(t, wallet.History, 2)
	assert.Equal(t, int64(10), srv.remainingCredits(t, "user-1"))

	rec = srv.do(t, http.MethodGet, "/admin/users/user-1/wallet/reconcile", nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report reconciliationResponse
	decodeData(t, rec, &report)
	assert.True(t, report.Consistent)
}

func TestReceiptAndAdminRefund(t *testing.T) {
	srv := newTestServer(t)
	orderID := srv.createOrder(t, "user-1", 10)

	rec := srv.do(t, http.MethodGet, "/api/credits/purchases/"+orderID+"/receipt", nil, asUser("user-1"))
	assert.Equal(t, http.StatusConflict, rec.Code, "pending purchases have no receipt")

	payload, headers := gatewaytest.CapturedWebhook(orderID, "pay_1")
	rec = srv.do(t, http.MethodPost, "/api/payments/webhooks/razorpay", payload, map[string]string{
		"X-Razorpay-Signature": headers.Get("X-Razorpay-Signature"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/credits/purchases/"+orderID+"/receipt", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = srv.do(t, http.MethodPost, "/admin/purchases/"+orderID+"/refund", gin.H{"reason": "duplicate"}, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refunded ledgerdomain.CreditPurchase
	decodeData(t, rec, &refunded)
	assert.Equal(t, ledgerdomain.StatusRefunded, refunded.Status)

	rec = srv.do(t, http.MethodPost, "/admin/purchases/"+orderID+"/refund", nil, asAdmin("ops"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodGet, "/admin/stats", nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats ledgerdomain.PurchaseStats
	decodeData(t, rec, &stats)
	assert.Equal(t, int64(1), stats.ByStatus[ledgerdomain.StatusRefunded])
}

func TestAdminMarksPendingPurchaseFailed(t *testing.T) {
	srv := newTestServer(t)
	orderID := srv.createOrder(t, "user-1", 10)

	rec := srv.do(t, http.MethodPost, "/admin/purchases/"+orderID+"/fail", nil, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/credits/purchases?status=failed", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list purchasedomain.ListResponse
	decodeData(t, rec, &list)
	require.Len(t, list.Purchases, 1)
	assert.Equal(t, orderID, list.Purchases[0].PaymentID)

	rec = srv.do(t, http.MethodGet, "/api/credits/purchases?status=bogus", nil, asUser("user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssistantMeteringOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	ask := gin.H{"message": "What is photosynthesis?"}

	for i := 0; i < 5; i++ {
		rec := srv.do(t, http.MethodPost, "/api/assistant/ask", ask, asUser("user-1"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp assistantdomain.AskResponse
		decodeData(t, rec, &resp)
		assert.Equal(t, usagedomain.ModeFree, resp.Mode)
	}

	rec := srv.do(t, http.MethodPost, "/api/assistant/ask", ask, asUser("user-1"))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "usage_blocked", decodeError(t, rec).Type)

	rec = srv.do(t, http.MethodPost, "/admin/users/user-1/credits/grant", gin.H{"credits": 10, "reason": "support"}, asAdmin("ops"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/assistant/ask", ask, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid assistantdomain.AskResponse
	decodeData(t, rec, &paid)
	assert.Equal(t, usagedomain.ModePaid, paid.Mode)

	rec = srv.do(t, http.MethodGet, "/api/usage", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var status usagedomain.Status
	decodeData(t, rec, &status)
	assert.Equal(t, int64(9), status.RemainingCredits)
	assert.Equal(t, int64(0), status.FreeRemaining)

	rec = srv.do(t, http.MethodGet, "/api/assistant/messages?limit=3", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []assistantdomain.ChatMessage
	decodeData(t, rec, &messages)
	assert.Len(t, messages, 3)
}

func TestAssistantFailureChargesNothing(t *testing.T) {
	srv := newTestServer(t)
	srv.inference.err = assistantdomain.ErrInferenceUnavailable

	rec := srv.do(t, http.MethodPost, "/api/assistant/ask", gin.H{"message": "hello"}, asUser("user-1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "assistant_unavailable", decodeError(t, rec).Type)

	rec = srv.do(t, http.MethodGet, "/api/usage", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var status usagedomain.Status
	decodeData(t, rec, &status)
	assert.Equal(t, int64(5), status.FreeRemaining)

	rec = srv.do(t, http.MethodGet, "/api/assistant/messages", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []assistantdomain.ChatMessage
	decodeData(t, rec, &messages)
	assert.Empty(t, messages)
}

func TestAssistantValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/assistant/ask", gin.H{"message": "   "}, asUser("user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_message", payload.Errors[0].Code)

	rec = srv.do(t, http.MethodPost, "/api/assistant/ask", []byte("{"), asUser("user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ledgerdomain.ErrNotFound, http.StatusNotFound},
		{catalogdomain.ErrBundleNotFound, http.StatusNotFound},
		{ledgerdomain.ErrInsufficientBalance, http.StatusPaymentRequired},
		{ledgerdomain.ErrInsufficientCredits, http.StatusPaymentRequired},
		{usagedomain.ErrUsageBlocked, http.StatusPaymentRequired},
		{paymentdomain.ErrInvalidSignature, http.StatusBadRequest},
		{paymentdomain.ErrGatewayUnavailable, http.StatusServiceUnavailable},
		{paymentdomain.ErrGatewayRejected, http.StatusBadGateway},
		{assistantdomain.ErrInferenceRejected, http.StatusBadGateway},
		{ledgerdomain.ErrInternalConsistency, http.StatusInternalServerError},
		{ledgerdomain.ErrInvalidTransition, http.StatusConflict},
		{authorization.ErrForbidden, http.StatusForbidden},
		{ErrRateLimited, http.StatusTooManyRequests},
		{errors.Join(errors.New("wrapped"), ledgerdomain.ErrInvalidAmount), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.NotContains(t, payload.Message, "wrapped")
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(nil))
	assert.Equal(t, 1, retryAfterSeconds(&ratelimit.RateLimitResult{}))
	assert.Equal(t, 3, retryAfterSeconds(&ratelimit.RateLimitResult{RetryAfter: 2100 * time.Millisecond}))
}
