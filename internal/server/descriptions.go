package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/storefront/internal/catalog/domain"
	descriptiondomain "github.com/smallbiznis/storefront/internal/description/domain"
	"github.com/smallbiznis/storefront/internal/description/gemini"
)

const (
	messageProductNotFound    = "Product not found"
	messageNoProductsSelected = "No products selected"
	messageMissingAPIKey      = "GEMINI_API_KEY environment variable is not set"
	messageEmptyResponse      = "Empty response from Gemini"
)

// GenerateProductDescription returns fresh copy for one product without saving it.
func (s *Server) GenerateProductDescription(c *gin.Context) {
	result, err := s.descriptionSvc.Generate(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalogdomain.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": messageProductNotFound})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": descriptionErrorMessage(err)})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GenerateBulkDescriptions handles one product per call; the client posts the
// returned remaining ids until none are left.
func (s *Server) GenerateBulkDescriptions(c *gin.Context) {
	var req descriptiondomain.BulkRequest
	if err := c.ShouldBind(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.ProductIDs) == 1 && strings.Contains(req.ProductIDs[0], ",") {
		req.ProductIDs = strings.Split(req.ProductIDs[0], ",")
	}

	resp, err := s.descriptionSvc.GenerateBulk(c.Request.Context(), req)
	if err != nil {
		var bulkErr *descriptiondomain.BulkError
		switch {
		case errors.Is(err, descriptiondomain.ErrNoProductsSelected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": messageNoProductsSelected})
		case errors.As(err, &bulkErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":        descriptionErrorMessage(bulkErr.Err),
				"product_id":   bulkErr.ProductID,
				"product_name": bulkErr.ProductName,
			})
		default:
			AbortWithError(c, err)
		}
		return
	}

	if resp.Remaining == nil {
		resp.Remaining = []string{}
	}
	c.JSON(http.StatusOK, resp)
}

func descriptionErrorMessage(err error) string {
	switch {
	case errors.Is(err, gemini.ErrMissingAPIKey):
		return messageMissingAPIKey
	case errors.Is(err, gemini.ErrEmptyResponse):
		return messageEmptyResponse
	case errors.Is(err, catalogdomain.ErrProductNotFound):
		return messageProductNotFound
	default:
		return err.Error()
	}
}
