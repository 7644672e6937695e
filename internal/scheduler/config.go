package scheduler

import (
	"time"

	"github.com/smallbiznis/creditledger/internal/config"
)

const (
	JobReconcilePendingPurchases = "reconcile_pending_purchases"
	JobWalletAudit               = "wallet_audit"
)

// maxBatchSize matches the ledger store's page cap.
const maxBatchSize = 500

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	// PendingAfter is how long an order stays untouched before the
	// reconciler asks the gateway about it.
	PendingAfter time.Duration
	JobTimeout   time.Duration
	LockTTL      time.Duration
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Minute,
		BatchSize:    50,
		PendingAfter: 15 * time.Minute,
		JobTimeout:   30 * time.Second,
		LockTTL:      45 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:  time.Duration(cfg.Scheduler.RunIntervalSecond) * time.Second,
		BatchSize:    cfg.Scheduler.BatchSize,
		PendingAfter: time.Duration(cfg.Scheduler.PendingAfterSecond) * time.Second,
		EnabledJobs:  cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.BatchSize > maxBatchSize {
		c.BatchSize = maxBatchSize
	}
	if c.PendingAfter <= 0 {
		c.PendingAfter = defaults.PendingAfter
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= c.JobTimeout {
		c.LockTTL = c.JobTimeout + 15*time.Second
	}
	return c
}
