package migration

import (
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, clk clock.Clock, log *zap.Logger) error {
		if err := Migrate(conn); err != nil {
			return err
		}
		if err := SeedPricing(conn, cfg.Payment.Currency, clk.Now()); err != nil {
			return err
		}
		log.Named("migrations").Info("schema ready", zap.String("dialect", conn.Dialector.Name()))
		return nil
	}),
)
