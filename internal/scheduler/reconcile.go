package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"go.uber.org/zap"
)

const SourceReconciler = "reconciler"

// ReconcilePendingPurchasesJob asks the gateway about online orders that
// neither the client nor a webhook confirmed, and fulfills the ones that
// were captured. Orders without a captured payment stay pending.
func (s *Scheduler) ReconcilePendingPurchasesJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobReconcilePendingPurchases, s.cfg.BatchSize)
	cutoff := s.clock.Now().Add(-s.cfg.PendingAfter)
	schedMetrics := obsmetrics.Scheduler()

	var after snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.purchases.ListPending(ctx, cutoff, after, s.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, purchase := range batch {
			after = purchase.ID
			if err := s.reconcilePurchase(ctx, purchase); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logItemError(ctx, run, "pending purchase reconciliation failed", err,
					zap.String("order_id", purchase.PaymentID),
				)
			}
		}
		run.AddProcessed(len(batch))
		schedMetrics.AddBatchProcessed(JobReconcilePendingPurchases, "credit_purchases", len(batch))

		if len(batch) < s.cfg.BatchSize {
			return nil
		}
	}
}

func (s *Scheduler) reconcilePurchase(ctx context.Context, purchase ledgerdomain.CreditPurchase) error {
	payments, err := s.gateway.FetchOrderPayments(ctx, purchase.PaymentID)
	if err != nil {
		return err
	}

	for _, payment := range payments {
		if !payment.Captured {
			continue
		}
		result, err := s.purchases.Fulfill(ctx, purchase.PaymentID, payment.ID)
		if err != nil {
			s.metrics.RecordFulfillment(ctx, SourceReconciler, "error")
			return err
		}
		s.metrics.RecordFulfillment(ctx, SourceReconciler, string(result))
		s.logger(ctx).Info("pending purchase reconciled",
			zap.String("order_id", purchase.PaymentID),
			zap.String("payment_id", payment.ID),
			zap.String("user_id", purchase.UserID),
			zap.String("result", string(result)),
		)
		return nil
	}
	return nil
}
