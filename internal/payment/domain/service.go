package domain

import (
	"context"
	"net/http"

	purchasedomain "github.com/smallbiznis/creditledger/internal/purchase/domain"
)

// VerifyPaymentRequest is what the checkout widget hands back after a
// successful payment.
type VerifyPaymentRequest struct {
	UserID    string `json:"-"`
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// Dispatcher routes both confirmation paths into the same fulfillment.
type Dispatcher interface {
	VerifyClientPayment(ctx context.Context, req VerifyPaymentRequest) (purchasedomain.FulfillResult, error)
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
