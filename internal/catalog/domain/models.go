package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PricingID is the primary key of the only credit_pricing row.
const PricingID int64 = 1

// DefaultRatePerCredit applies until an operator sets a rate.
var DefaultRatePerCredit = decimal.NewFromInt(1)

// MaxCredits bounds the credits of one bundle or one custom quote.
const MaxCredits int64 = 1_000_000_000

// MaxPrice is the largest rate or bundle price the catalog stores
// (numeric(10,2)).
var MaxPrice = decimal.RequireFromString("99999999.99")

// MaxTotalAmount is the largest total a purchase row can store
// (numeric(12,2)).
var MaxTotalAmount = decimal.RequireFromString("9999999999.99")

type CreditPricing struct {
	ID            int64           `json:"-" gorm:"primaryKey"`
	RatePerCredit decimal.Decimal `json:"rate_per_credit" gorm:"type:numeric(10,2);not null"`
	Currency      string          `json:"currency" gorm:"type:varchar(3);not null"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"not null"`
}

func (CreditPricing) TableName() string { return "credit_pricing" }

type CreditBundle struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	Name        string            `json:"name" gorm:"type:varchar(100);not null"`
	Slug        string            `json:"slug" gorm:"type:varchar(120);not null;uniqueIndex:ux_credit_bundles_slug"`
	Credits     int64             `json:"credits" gorm:"not null"`
	Price       decimal.Decimal   `json:"price" gorm:"type:numeric(10,2);not null;index"`
	Description *string           `json:"description,omitempty" gorm:"type:text"`
	Active      bool              `json:"active" gorm:"not null;default:true"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null"`
}

func (CreditBundle) TableName() string { return "credit_bundles" }

func Models() []any {
	return []any{&CreditPricing{}, &CreditBundle{}}
}

// Quote is the server-computed price of a credit purchase.
type Quote struct {
	BundleID      *snowflake.ID   `json:"bundle_id,omitempty"`
	Credits       int64           `json:"credits"`
	RatePerCredit decimal.Decimal `json:"rate_per_credit"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
}
