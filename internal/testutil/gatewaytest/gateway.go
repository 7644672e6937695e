// Package gatewaytest provides an in-process payment gateway. Signature
// checks and webhook parsing run through the real Razorpay adapter; order
// creation and payment lookups are served from memory.
package gatewaytest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/smallbiznis/creditledger/internal/payment/adapters/razorpay"
	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
)

const (
	KeyID         = "rzp_test_fake"
	KeySecret     = "key_secret"
	WebhookSecret = "whsec_test"
)

type Gateway struct {
	paymentdomain.Gateway

	mu       sync.Mutex
	seq      int
	err      error
	orders   []paymentdomain.OrderRequest
	payments map[string][]paymentdomain.OrderPayment
	fetchErr map[string]error
	fetches  int
}

func New(t testing.TB) *Gateway {
	t.Helper()
	adapter, err := razorpay.NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		KeyID:         KeyID,
		KeySecret:     KeySecret,
		WebhookSecret: WebhookSecret,
	})
	if err != nil {
		t.Fatalf("razorpay adapter: %v", err)
	}
	return &Gateway{
		Gateway:  adapter,
		payments: map[string][]paymentdomain.OrderPayment{},
		fetchErr: map[string]error{},
	}
}

// FailWith makes every remote call return err until cleared with nil.
func (g *Gateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *Gateway) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (*paymentdomain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	g.orders = append(g.orders, req)
	return &paymentdomain.Order{
		ID:          fmt.Sprintf("order_test_%d", g.seq),
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Receipt:     req.Receipt,
		Status:      "created",
	}, nil
}

func (g *Gateway) FetchOrderPayments(ctx context.Context, orderID string) ([]paymentdomain.OrderPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	if g.err != nil {
		return nil, g.err
	}
	if err := g.fetchErr[orderID]; err != nil {
		return nil, err
	}
	return append([]paymentdomain.OrderPayment(nil), g.payments[orderID]...), nil
}

// FailFetch makes payment lookups for one order return err.
func (g *Gateway) FailFetch(orderID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchErr[orderID] = err
}

// Capture records a captured payment for orderID.
func (g *Gateway) Capture(orderID, paymentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[orderID] = append(g.payments[orderID], paymentdomain.OrderPayment{
		ID:       paymentID,
		OrderID:  orderID,
		Status:   "captured",
		Captured: true,
	})
}

func (g *Gateway) Orders() []paymentdomain.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]paymentdomain.OrderRequest(nil), g.orders...)
}

func (g *Gateway) Fetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}

// PaymentSignature is what the checkout widget would return.
func PaymentSignature(orderID, paymentID string) string {
	return razorpay.Sign(KeySecret, []byte(orderID+"|"+paymentID))
}

// CapturedWebhook returns a payment.captured body and signed headers.
func CapturedWebhook(orderID, paymentID string) ([]byte, http.Header) {
	return Webhook(paymentdomain.EventTypePaymentCaptured, orderID, paymentID)
}

func Webhook(eventType, orderID, paymentID string) ([]byte, http.Header) {
	payload := []byte(fmt.Sprintf(
		`{"entity":"event","event":%q,"contains":["payment"],"created_at":1767225600,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":1000,"currency":"INR","status":"captured"}}}}`,
		eventType, paymentID, orderID,
	))
	headers := http.Header{}
	headers.Set("X-Razorpay-Signature", razorpay.Sign(WebhookSecret, payload))
	return payload, headers
}
