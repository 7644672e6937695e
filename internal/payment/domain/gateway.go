package domain

import (
	"context"
	"net/http"
	"time"
)

type Gateway interface {
	Provider() string
	// PublicKey is handed to the browser checkout widget.
	PublicKey() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) error
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error
	ParseWebhook(ctx context.Context, payload []byte) (*PaymentEvent, error)
	FetchOrderPayments(ctx context.Context, orderID string) ([]OrderPayment, error)
}

type AdapterConfig struct {
	Provider      string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}
