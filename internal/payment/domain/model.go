package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the audit copy of a verified webhook, one row per provider
// event id. ProcessedAt is set once the delivery reached a terminal outcome;
// fulfillment itself is still decided by the purchase row.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:varchar(64);not null"`
	OrderID         string         `json:"order_id" gorm:"type:varchar(128);index"`
	PaymentID       string         `json:"payment_id" gorm:"type:varchar(128)"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

func Models() []any {
	return []any{&EventRecord{}}
}

const EventTypePaymentCaptured = "payment.captured"

// PaymentEvent is the canonical event parsed by adapters.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	OrderID         string
	PaymentID       string
	Amount          int64
	Currency        string
	OccurredAt      time.Time
	RawPayload      []byte
}

// OrderRequest amounts are in minor currency units.
type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

type Order struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
}

// OrderPayment is one payment attempt against an order as the gateway
// reports it.
type OrderPayment struct {
	ID          string
	OrderID     string
	Status      string
	AmountMinor int64
	Currency    string
	Captured    bool
}
