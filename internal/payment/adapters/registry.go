package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/storefront/internal/payment/domain"
)

// DefaultProvider is used when SAFERPAY_PROVIDER is left empty.
const DefaultProvider = "saferpay"

// Registry maps a configured processor name to the factory that builds its client.
type Registry struct {
	factories map[string]domain.GatewayFactory
}

func NewRegistry(factories ...domain.GatewayFactory) *Registry {
	registry := &Registry{factories: make(map[string]domain.GatewayFactory, len(factories))}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if key := providerKey(factory.Provider()); key != "" {
			registry.factories[key] = factory
		}
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[providerKey(provider)]
	return ok
}

// Providers lists registered processor names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewGateway builds the client for provider. Errors wrap ErrProviderNotFound
// or the factory's own error so callers can match them with errors.Is.
func (r *Registry) NewGateway(provider string, cfg domain.GatewayConfig) (domain.Gateway, error) {
	key := providerKey(provider)
	if key == "" {
		key = DefaultProvider
	}
	if !r.ProviderExists(key) {
		return nil, fmt.Errorf("payment provider %q (registered: %s): %w",
			key, strings.Join(r.Providers(), ", "), domain.ErrProviderNotFound)
	}
	gateway, err := r.factories[key].NewGateway(cfg)
	if err != nil {
		return nil, fmt.Errorf("payment provider %q: %w", key, err)
	}
	return gateway, nil
}

func providerKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
