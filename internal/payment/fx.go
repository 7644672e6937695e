package payment

import (
	"time"

	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/smallbiznis/creditledger/internal/payment/adapters"
	"github.com/smallbiznis/creditledger/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/creditledger/internal/payment/domain"
	"github.com/smallbiznis/creditledger/internal/payment/repository"
	"github.com/smallbiznis/creditledger/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			razorpay.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
	fx.Provide(webhook.NewService),
)

// NewGateway builds the configured provider's adapter once at startup.
func NewGateway(registry *adapters.Registry, cfg config.Config) (domain.Gateway, error) {
	return registry.NewAdapter(domain.AdapterConfig{
		Provider:      cfg.Payment.Provider,
		KeyID:         cfg.Payment.KeyID,
		KeySecret:     cfg.Payment.KeySecret,
		WebhookSecret: cfg.Payment.WebhookSecret,
		BaseURL:       cfg.Payment.BaseURL,
		Timeout:       time.Duration(cfg.Payment.TimeoutSecond) * time.Second,
	})
}
