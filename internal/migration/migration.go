package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	assistantdomain "github.com/smallbiznis/creditledger/internal/assistant/domain"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Models lists every table the service owns. casbin_rule is created by the
// casbin adapter.
func Models() []any {
	models := make([]any, 0, 10)
	models = append(models, ledgerdomain.Models()...)
	models = append(models, catalogdomain.Models()...)
	models = append(models, paymentdomain.Models()...)
	models = append(models, assistantdomain.Models()...)
	return models
}

// Migrate brings the schema up to date. Postgres runs the versioned SQL
// migrations; other dialects fall back to AutoMigrate for local use.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// SeedPricing inserts the default credit rate if no rate exists yet. An
// operator-set rate is never overwritten.
func SeedPricing(conn *gorm.DB, currency string, now time.Time) error {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "INR"
	}
	pricing := catalogdomain.CreditPricing{
		ID:            catalogdomain.PricingID,
		RatePerCredit: catalogdomain.DefaultRatePerCredit,
		Currency:      currency,
		UpdatedAt:     now.UTC(),
	}
	return conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&pricing).Error
}
