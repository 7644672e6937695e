package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/creditledger/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/creditledger/internal/catalog/service"
	"github.com/smallbiznis/creditledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/creditledger/internal/ledger/repository"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
	purchasedomain "github.com/smallbiznis/creditledger/internal/purchase/domain"
	purchaseservice "github.com/smallbiznis/creditledger/internal/purchase/service"
	"github.com/smallbiznis/creditledger/internal/testutil/dbtest"
	"github.com/smallbiznis/creditledger/internal/testutil/gatewaytest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	sched     *Scheduler
	store     ledgerdomain.Store
	purchases purchasedomain.Service
	gateway   *gatewaytest.Gateway
	db        *gorm.DB
	clock     *clock.FakeClock
	registry  *prometheus.Registry
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "creditledger", Environment: "test"})

	db := dbtest.Open(t, append(ledgerdomain.Models(), catalogdomain.Models()...)...)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := ledgerrepo.NewStore(ledgerrepo.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk})
	catalog := catalogservice.New(catalogservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  catalogrepo.Provide(),
		Clock: clk,
	})
	gateway := gatewaytest.New(t)
	purchases := purchaseservice.NewService(purchaseservice.Params{
		Store:   store,
		Catalog: catalog,
		Gateway: gateway,
		Log:     zap.NewNop(),
		Clock:   clk,
	})

	sched, err := New(Params{
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Store:     store,
		Purchases: purchases,
		Gateway:   gateway,
		Config:    cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return &harness{
		sched:     sched,
		store:     store,
		purchases: purchases,
		gateway:   gateway,
		db:        db,
		clock:     clk,
		registry:  registry,
	}
}

func (h *harness) order(t *testing.T, userID string, credits int64) string {
	t.Helper()
	resp, err := h.purchases.CreateOrder(context.Background(), purchasedomain.CreateOrderRequest{UserID: userID, Credits: credits})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return resp.OrderID
}

func (h *harness) status(t *testing.T, orderID string) ledgerdomain.Status {
	t.Helper()
	p, err := h.store.GetPurchase(context.Background(), orderID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	return p.Status
}

func (h *harness) remaining(t *testing.T, userID string) int64 {
	t.Helper()
	c, err := h.store.GetUserCredits(context.Background(), userID)
	if err != nil {
		t.Fatalf("get credits: %v", err)
	}
	return c.RemainingCredits
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	h := newHarness(t, Config{})

	err := h.sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "creditledger",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, h.registry, "creditledger_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "creditledger",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, h.registry, "creditledger_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobWrapsErrors(t *testing.T) {
	h := newHarness(t, Config{})
	boom := errors.New("boom")

	err := h.sched.runJob(context.Background(), "failing_job", 1, time.Second, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestReconcileFulfillsCapturedPendingOrders(t *testing.T) {
	h := newHarness(t, Config{PendingAfter: 10 * time.Minute})
	ctx := context.Background()

	captured := h.order(t, "user-1", 10)
	uncaptured := h.order(t, "user-2", 5)
	h.clock.Advance(5 * time.Minute)
	young := h.order(t, "user-3", 7)
	h.clock.Advance(6 * time.Minute)

	h.gateway.Capture(captured, "pay_1")
	h.gateway.Capture(young, "pay_3")

	if err := h.sched.ReconcilePendingPurchasesJob(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := h.status(t, captured); got != ledgerdomain.StatusSuccess {
		t.Fatalf("expected captured order success, got %s", got)
	}
	if got := h.remaining(t, "user-1"); got != 10 {
		t.Fatalf("expected 10 credits, got %d", got)
	}
	if got := h.status(t, uncaptured); got != ledgerdomain.StatusPending {
		t.Fatalf("expected uncaptured order pending, got %s", got)
	}
	if got := h.status(t, young); got != ledgerdomain.StatusPending {
		t.Fatalf("expected young order untouched, got %s", got)
	}
	if got := h.gateway.Fetches(); got != 2 {
		t.Fatalf("expected 2 gateway lookups, got %d", got)
	}
}

func TestReconcileIsIdempotentWithOtherPaths(t *testing.T) {
	h := newHarness(t, Config{PendingAfter: time.Minute})
	ctx := context.Background()

	orderID := h.order(t, "user-1", 4)
	h.clock.Advance(2 * time.Minute)
	h.gateway.Capture(orderID, "pay_1")

	result, err := h.purchases.Fulfill(ctx, orderID, "pay_1")
	if err != nil || result != purchasedomain.FulfillSucceeded {
		t.Fatalf("client fulfill: %v %v", result, err)
	}
	if err := h.sched.ReconcilePendingPurchasesJob(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got := h.remaining(t, "user-1"); got != 4 {
		t.Fatalf("expected credits granted once, got %d", got)
	}
	if got := h.gateway.Fetches(); got != 0 {
		t.Fatalf("fulfilled orders are not pending, got %d lookups", got)
	}
}

func TestReconcileContinuesPastGatewayFailures(t *testing.T) {
	h := newHarness(t, Config{PendingAfter: time.Minute, BatchSize: 1})

	broken := h.order(t, "user-1", 1)
	healthy := h.order(t, "user-2", 2)
	h.clock.Advance(2 * time.Minute)
	h.gateway.FailFetch(broken, paymentdomain.ErrGatewayUnavailable)
	h.gateway.Capture(broken, "pay_1")
	h.gateway.Capture(healthy, "pay_2")

	if err := h.sched.ReconcilePendingPurchasesJob(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got := h.status(t, broken); got != ledgerdomain.StatusPending {
		t.Fatalf("expected broken order pending, got %s", got)
	}
	if got := h.status(t, healthy); got != ledgerdomain.StatusSuccess {
		t.Fatalf("expected healthy order success, got %s", got)
	}
}

func TestWalletAuditReportsDrift(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 1})
	ctx := context.Background()

	for _, userID := range []string{"user-1", "user-2"} {
		err := h.store.WithLockedWallet(ctx, userID, func(tx ledgerdomain.Tx, w *ledgerdomain.Wallet) error {
			amount := decimal.NewFromInt(50)
			w.Balance = w.Balance.Add(amount)
			return tx.AppendWalletHistory(&ledgerdomain.WalletHistory{
				WalletID:  w.ID,
				UserID:    w.UserID,
				Direction: ledgerdomain.DirectionCredit,
				Amount:    amount,
				Purpose:   ledgerdomain.PurposeTopUp,
				Status:    ledgerdomain.StatusSuccess,
			})
		})
		if err != nil {
			t.Fatalf("top up %s: %v", userID, err)
		}
	}
	if err := h.db.Exec("UPDATE wallets SET balance = 75 WHERE user_id = ?", "user-2").Error; err != nil {
		t.Fatalf("corrupt wallet: %v", err)
	}

	if err := h.sched.WalletAuditJob(ctx); err != nil {
		t.Fatalf("audit: %v", err)
	}
	labels := map[string]string{"service": "creditledger", "env": "test"}
	if got := getGaugeValue(t, h.registry, "creditledger_wallet_drift_wallets", labels); got != 1 {
		t.Fatalf("expected 1 drifted wallet, got %v", got)
	}
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	h := newHarness(t, Config{PendingAfter: time.Minute, EnabledJobs: []string{JobWalletAudit}})

	orderID := h.order(t, "user-1", 1)
	h.clock.Advance(2 * time.Minute)
	h.gateway.Capture(orderID, "pay_1")

	if err := h.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := h.status(t, orderID); got != ledgerdomain.StatusPending {
		t.Fatalf("reconciler disabled, got %s", got)
	}
	if !h.sched.isJobEnabled("WALLET_AUDIT") {
		t.Fatalf("job names match case-insensitively")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{BatchSize: 10000}.withDefaults()
	if cfg.BatchSize != maxBatchSize {
		t.Fatalf("expected batch size capped at %d, got %d", maxBatchSize, cfg.BatchSize)
	}
	if cfg.LockTTL <= cfg.JobTimeout {
		t.Fatalf("lock ttl %v must outlive job timeout %v", cfg.LockTTL, cfg.JobTimeout)
	}
	if cfg.PendingAfter != 15*time.Minute {
		t.Fatalf("unexpected pending threshold %v", cfg.PendingAfter)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func findMetric(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return nil
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metric := findMetric(t, registry, name, labels)
	if metric.Counter == nil {
		t.Fatalf("metric %s is not a counter", name)
	}
	return metric.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metric := findMetric(t, registry, name, labels)
	if metric.Gauge == nil {
		t.Fatalf("metric %s is not a gauge", name)
	}
	return metric.GetGauge().GetValue()
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
