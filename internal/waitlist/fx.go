package waitlist

import (
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	"github.com/smallbiznis/storefront/internal/waitlist/repository"
	"github.com/smallbiznis/storefront/internal/waitlist/service"
	"go.uber.org/fx"
)

var Module = fx.Module("waitlist.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(
		fx.Annotate(
			service.NewRestockObserver,
			fx.As(new(inventorydomain.RestockObserver)),
			fx.ResultTags(`group:"restock_observers"`),
		),
	),
)
