package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	"go.uber.org/zap"
)

type setStockItemRequest struct {
	StockLocationID flexibleID `json:"stock_location_id" form:"stock_location_id"`
	VariantID       flexibleID `json:"variant_id" form:"variant_id"`
	CountOnHand     *int       `json:"count_on_hand" form:"count_on_hand"`
}

// SetStockItemCount overwrites the on-hand count of one variant. A restock
// from zero queues the waitlist fan-out.
func (s *Server) SetStockItemCount(c *gin.Context) {
	var req setStockItemRequest
	if err := c.ShouldBind(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	variantID, ok := req.VariantID.snowflake()
	if !ok {
		AbortWithError(c, newValidationError("variant_id", "invalid_variant_id", "invalid variant_id"))
		return
	}
	if req.CountOnHand == nil {
		AbortWithError(c, newValidationError("count_on_hand", "invalid_count_on_hand", "count_on_hand is required"))
		return
	}

	locationID, ok := req.StockLocationID.snowflake()
	if !ok {
		AbortWithError(c, newValidationError("stock_location_id", "invalid_stock_location_id", "invalid stock_location_id"))
		return
	}

	item, err := s.inventorySvc.SetCountOnHand(c.Request.Context(), inventorydomain.SetCountRequest{
		StockLocationID: locationID,
		VariantID:       variantID,
		CountOnHand:     *req.CountOnHand,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// RunStockSync pulls one supplier feed immediately instead of waiting for the scheduler.
func (s *Server) RunStockSync(c *gin.Context) {
	supplier := strings.TrimSpace(c.Param("supplier"))
	log := obslogger.FromContext(c.Request.Context()).With(zap.String("supplier", supplier))

	stats, err := s.stockSyncer.Sync(c.Request.Context(), supplier)
	if err != nil {
		log.Warn("manual stock sync failed", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	log.Info("manual stock sync finished",
		zap.Int("parsed", stats.Parsed),
		zap.Int("updated", stats.Updated),
		zap.Int("unmatched", stats.Unmatched),
	)
	c.JSON(http.StatusOK, gin.H{"data": stats})
}
