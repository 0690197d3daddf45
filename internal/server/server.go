package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/storefront/internal/audit"
	auditdomain "github.com/smallbiznis/storefront/internal/audit/domain"
	"github.com/smallbiznis/storefront/internal/catalog"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/description"
	descriptiondomain "github.com/smallbiznis/storefront/internal/description/domain"
	"github.com/smallbiznis/storefront/internal/inventory"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	"github.com/smallbiznis/storefront/internal/inventory/feed"
	"github.com/smallbiznis/storefront/internal/observability"
	obsmiddleware "github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	obstracing "github.com/smallbiznis/storefront/internal/observability/tracing"
	"github.com/smallbiznis/storefront/internal/payment"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/providers"
	"github.com/smallbiznis/storefront/internal/queue"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	"github.com/smallbiznis/storefront/internal/waitlist"
	waitlistdomain "github.com/smallbiznis/storefront/internal/waitlist/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	catalog.Module,
	providers.Module,
	payment.Module,
	inventory.Module,
	waitlist.Module,
	description.Module,
	queue.Module,
	ratelimit.Module,
	fx.Provide(func(s *feed.Syncer) StockSyncer { return s }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// StockSyncer runs a supplier feed on demand from the admin surface.
type StockSyncer interface {
	Sync(ctx context.Context, supplierKey string) (inventorydomain.SyncStats, error)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	auditSvc        auditdomain.Service
	paymentSvc      paymentdomain.Service
	inventorySvc    inventorydomain.Service
	stockSyncer     StockSyncer
	waitlistSvc     waitlistdomain.Service
	waitlistLimiter *ratelimit.WaitlistLimiter
	descriptionSvc  descriptiondomain.Service
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuditSvc        auditdomain.Service
	PaymentSvc      paymentdomain.Service
	InventorySvc    inventorydomain.Service
	StockSyncer     StockSyncer
	WaitlistSvc     waitlistdomain.Service
	DescriptionSvc  descriptiondomain.Service
	WaitlistLimiter *ratelimit.WaitlistLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		auditSvc:        p.AuditSvc,
		paymentSvc:      p.PaymentSvc,
		inventorySvc:    p.InventorySvc,
		stockSyncer:     p.StockSyncer,
		waitlistSvc:     p.WaitlistSvc,
		waitlistLimiter: p.WaitlistLimiter,
		descriptionSvc:  p.DescriptionSvc,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerStorefrontRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerStorefrontRoutes() {
	saferpay := s.engine.Group("/saferpay")
	saferpay.GET("/success", s.SaferpaySuccess)
	saferpay.GET("/fail", s.SaferpayFail)
	saferpay.POST("/notify", s.SaferpayNotify)

	s.engine.POST("/checkout/:order_number/saferpay", s.SaferpayCheckout)

	s.engine.POST("/waitlist", s.CreateWaitlistEntry)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminAuthRequired())

	admin.GET("/waitlist_entries", s.ListWaitlistEntries)

	admin.POST("/products/:id/ai_description", s.GenerateProductDescription)
	admin.POST("/ai_descriptions/generate_bulk", s.GenerateBulkDescriptions)

	admin.PUT("/stock_items", s.SetStockItemCount)
	admin.POST("/stock_sync/:supplier", s.RunStockSync)

	admin.POST("/payments/:id/refund", s.RefundPayment)
	admin.POST("/payments/:id/void", s.VoidPayment)

	admin.GET("/audit_logs", s.ListAuditLogs)
}
