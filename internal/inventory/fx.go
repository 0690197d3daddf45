package inventory

import (
	"github.com/smallbiznis/storefront/internal/inventory/feed"
	"github.com/smallbiznis/storefront/internal/inventory/repository"
	"github.com/smallbiznis/storefront/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(feed.NewSyncer),
)
