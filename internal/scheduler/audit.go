package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"go.uber.org/zap"
)

// WalletAuditJob recomputes every wallet's balance from its successful
// history and reports the wallets that disagree. It never repairs them.
func (s *Scheduler) WalletAuditJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobWalletAudit, s.cfg.BatchSize)
	schedMetrics := obsmetrics.Scheduler()

	drifted := 0
	var after snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := s.store.ReconcileWallets(ctx, after, s.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, row := range rows {
			after = row.WalletID
			if row.Consistent() {
				continue
			}
			drifted++
			s.logger(ctx).Error("wallet balance drift",
				zap.String("wallet_id", row.WalletID.String()),
				zap.String("user_id", row.UserID),
				zap.String("balance", row.Balance.StringFixed(2)),
				zap.String("ledger_balance", row.LedgerBalance.StringFixed(2)),
				zap.String("drift", row.Drift().StringFixed(2)),
			)
		}
		run.AddProcessed(len(rows))
		schedMetrics.AddBatchProcessed(JobWalletAudit, "wallets", len(rows))

		if len(rows) < s.cfg.BatchSize {
			break
		}
	}

	// Only a complete pass sets the gauge.
	schedMetrics.SetWalletDrift(drifted)
	if drifted > 0 {
		run.IncError()
	}
	return nil
}
