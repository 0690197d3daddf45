package adapters

import (
	"errors"
	"testing"

	"github.com/smallbiznis/storefront/internal/payment/adapters/saferpay"
	"github.com/smallbiznis/storefront/internal/payment/domain"
)

var validConfig = domain.GatewayConfig{
	CustomerID:  "123456",
	TerminalID:  "17000001",
	APIUsername: "API_123456_1",
	APIPassword: "secret",
	TestMode:    true,
}

func TestRegistryBuildsConfiguredGateway(t *testing.T) {
	registry := NewRegistry(saferpay.NewFactory(), nil)

	if !registry.ProviderExists(" SaferPay ") {
		t.Fatalf("expected saferpay to be registered")
	}

	gateway, err := registry.NewGateway("saferpay", validConfig)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if gateway == nil {
		t.Fatalf("expected gateway instance")
	}
}

func TestRegistryDefaultsToSaferpay(t *testing.T) {
	registry := NewRegistry(saferpay.NewFactory())

	if _, err := registry.NewGateway("  ", validConfig); err != nil {
		t.Fatalf("expected default provider, got %v", err)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	registry := NewRegistry(saferpay.NewFactory())
	_, err := registry.NewGateway("stripe", domain.GatewayConfig{})
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if got := err.Error(); got != `payment provider "stripe" (registered: saferpay): provider_not_found` {
		t.Fatalf("unexpected message: %q", got)
	}

	var nilRegistry *Registry
	if nilRegistry.ProviderExists("saferpay") {
		t.Fatalf("nil registry should not report providers")
	}
	if _, err := nilRegistry.NewGateway("saferpay", validConfig); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound from nil registry, got %v", err)
	}
}

func TestRegistryWrapsFactoryErrors(t *testing.T) {
	registry := NewRegistry(saferpay.NewFactory())

	_, err := registry.NewGateway("saferpay", domain.GatewayConfig{})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
