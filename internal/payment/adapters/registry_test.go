package adapters

import (
	"errors"
	"testing"

	"github.com/smallbiznis/creditledger/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/creditledger/internal/payment/domain"
)

func TestRegistryNewAdapter(t *testing.T) {
	registry := NewRegistry(razorpay.NewFactory(), nil)

	gateway, err := registry.NewAdapter(domain.AdapterConfig{Provider: " RAZORPAY ", KeyID: "rzp_test", KeySecret: "secret"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if gateway.Provider() != "razorpay" {
		t.Fatalf("expected razorpay provider, got %s", gateway.Provider())
	}

	if _, err := registry.NewAdapter(domain.AdapterConfig{Provider: "stripe"}); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if _, err := registry.NewAdapter(domain.AdapterConfig{}); !errors.Is(err, domain.ErrInvalidProvider) {
		t.Fatalf("expected ErrInvalidProvider, got %v", err)
	}
}
