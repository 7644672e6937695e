package service

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/providers/pdf"
	"github.com/smallbiznis/creditledger/internal/purchase/domain"
)

const receiptIssuer = "creditledger"

// Receipt renders a PDF for a purchase that was paid.
func (s *Service) Receipt(ctx context.Context, userID, orderID string) ([]byte, error) {
	p, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status != ledgerdomain.StatusSuccess && p.Status != ledgerdomain.StatusRefunded {
		return nil, domain.ErrReceiptUnavailable
	}

	paidAt := p.CreatedAt
	if p.FulfilledAt != nil {
		paidAt = *p.FulfilledAt
	}
	paymentID := p.PaymentID
	if p.GatewayPaymentID != nil {
		paymentID = *p.GatewayPaymentID
	}

	r, err := s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		IssuerName:    receiptIssuer,
		ReceiptNumber: "RCPT-" + p.ID.String(),
		OrderID:       p.PaymentID,
		PaymentID:     paymentID,
		UserID:        p.UserID,
		DatePaid:      paidAt.Format("2006-01-02"),
		Method:        string(p.Method),
		Status:        string(p.Status),
		Items: []pdf.ReceiptItem{{
			Description: fmt.Sprintf("%d credits", p.CreditsPurchased),
			Qty:         p.CreditsPurchased,
			UnitPrice:   money(p.Currency, p.RatePerCredit),
			Amount:      money(p.Currency, p.TotalAmount),
		}},
		Total: money(p.Currency, p.TotalAmount),
	})
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func money(currency string, amount decimal.Decimal) string {
	return currency + " " + amount.StringFixed(2)
}
