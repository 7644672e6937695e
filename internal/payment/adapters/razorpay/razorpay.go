package razorpay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	providerName    = "razorpay"
	defaultBaseURL  = "https://api.razorpay.com"
	defaultTimeout  = 15 * time.Second
	signatureHeader = "X-Razorpay-Signature"
	maxErrorBody    = 4 << 10
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, paymentdomain.ErrInvalidConfig
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Adapter{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		baseURL:       baseURL,
		client:        client,
		tracer:        otel.Tracer("creditledger/payment/razorpay"),
	}, nil
}

type Adapter struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
	tracer        trace.Tracer
}

func (a *Adapter) Provider() string { return providerName }

func (a *Adapter) PublicKey() string { return a.keyID }

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type paymentEntity struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Captured  bool   `json:"captured"`
	CreatedAt int64  `json:"created_at"`
}

type paymentCollection struct {
	Count int             `json:"count"`
	Items []paymentEntity `json:"items"`
}

func (a *Adapter) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (*paymentdomain.Order, error) {
	if req.AmountMinor <= 0 || strings.TrimSpace(req.Currency) == "" {
		return nil, paymentdomain.ErrInvalidRequest
	}

	var out orderResponse
	err := a.do(ctx, "razorpay.CreateOrder", http.MethodPost, "/v1/orders", orderRequest{
		Amount:   req.AmountMinor,
		Currency: strings.ToUpper(req.Currency),
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	}, &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, fmt.Errorf("%w: order response without id", paymentdomain.ErrGatewayUnavailable)
	}
	return &paymentdomain.Order{
		ID:          out.ID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		Receipt:     out.Receipt,
		Status:      out.Status,
	}, nil
}

func (a *Adapter) FetchOrderPayments(ctx context.Context, orderID string) ([]paymentdomain.OrderPayment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, paymentdomain.ErrInvalidRequest
	}

	var out paymentCollection
	path := "/v1/orders/" + url.PathEscape(orderID) + "/payments"
	if err := a.do(ctx, "razorpay.FetchOrderPayments", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	payments := make([]paymentdomain.OrderPayment, 0, len(out.Items))
	for _, item := range out.Items {
		payments = append(payments, paymentdomain.OrderPayment{
			ID:          item.ID,
			OrderID:     item.OrderID,
			Status:      item.Status,
			AmountMinor: item.Amount,
			Currency:    strings.ToUpper(item.Currency),
			Captured:    item.Captured || item.Status == "captured",
		})
	}
	return payments, nil
}

func (a *Adapter) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	if !VerifyPaymentSignature(orderID, paymentID, signature, a.keySecret) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if !VerifyWebhookSignature(payload, headers.Get(signatureHeader), a.webhookSecret) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type webhookEnvelope struct {
	Entity    string `json:"entity"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseWebhook decodes any event envelope. Only payment.captured must name
// an order and a payment; other events come back for the audit log with
// whatever ids they carry.
func (a *Adapter) ParseWebhook(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	eventType := strings.TrimSpace(env.Event)
	if eventType == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	event := &paymentdomain.PaymentEvent{
		Provider:        providerName,
		ProviderEventID: eventID(payload),
		Type:            eventType,
		OccurredAt:      unixOrNow(env.CreatedAt),
		RawPayload:      payload,
	}
	if env.Payload.Payment != nil {
		entity := env.Payload.Payment.Entity
		event.OrderID = strings.TrimSpace(entity.OrderID)
		event.PaymentID = strings.TrimSpace(entity.ID)
		event.Amount = entity.Amount
		event.Currency = strings.ToUpper(strings.TrimSpace(entity.Currency))
	}

	if eventType == paymentdomain.EventTypePaymentCaptured && (event.OrderID == "" || event.PaymentID == "") {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return event, nil
}

func (a *Adapter) do(ctx context.Context, spanName, method, path string, body any, out any) error {
	ctx, span := a.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.provider", providerName),
		attribute.String("http.request.method", method),
	)

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(a.keyID, a.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		span.SetStatus(codes.Error, "unavailable")
		return fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		span.SetStatus(codes.Error, "rejected")
		return fmt.Errorf("%w: status %d: %s", paymentdomain.ErrGatewayRejected, resp.StatusCode, errorDescription(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	return nil
}

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func errorDescription(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Description != "" {
		return body.Error.Description
	}
	return strings.TrimSpace(string(raw))
}

// eventID identifies a delivery by its body. Razorpay redelivers the same
// body, so retries collapse onto one audit row.
func eventID(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func unixOrNow(ts int64) time.Time {
	if ts <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(ts, 0).UTC()
}
