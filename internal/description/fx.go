package description

import (
	"net/http"

	"github.com/smallbiznis/storefront/internal/config"
	descriptiondomain "github.com/smallbiznis/storefront/internal/description/domain"
	"github.com/smallbiznis/storefront/internal/description/gemini"
	"github.com/smallbiznis/storefront/internal/description/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("description.service",
	fx.Provide(NewGenerator),
	fx.Provide(service.NewService),
)

func NewGenerator(cfg config.Config, log *zap.Logger) descriptiondomain.Generator {
	if cfg.Gemini.APIKey == "" {
		log.Warn("GEMINI_API_KEY not set, description generation will fail")
	}
	return gemini.NewClient(cfg.Gemini, &http.Client{})
}
