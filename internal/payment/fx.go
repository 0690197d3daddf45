package payment

import (
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/payment/adapters"
	"github.com/smallbiznis/storefront/internal/payment/adapters/saferpay"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/payment/repository"
	paymentservice "github.com/smallbiznis/storefront/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			saferpay.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
	fx.Provide(paymentservice.NewService),
)

// NewGateway builds the configured processor client.
func NewGateway(cfg config.Config, registry *adapters.Registry) (paymentdomain.Gateway, error) {
	return registry.NewGateway(cfg.Saferpay.Provider, paymentdomain.GatewayConfig{
		CustomerID:  cfg.Saferpay.CustomerID,
		TerminalID:  cfg.Saferpay.TerminalID,
		APIUsername: cfg.Saferpay.APIUsername,
		APIPassword: cfg.Saferpay.APIPassword,
		TestMode:    cfg.Saferpay.TestMode,
	})
}
