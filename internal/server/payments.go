package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

type refundPaymentRequest struct {
	AmountMinor *int64 `json:"amount_minor"`
}

type paymentActionResponse struct {
	Success                bool   `json:"success"`
	Message                string `json:"message,omitempty"`
	AuthorizationReference string `json:"authorization_reference,omitempty"`
}

// RefundPayment refunds a captured payment, fully when amount_minor is omitted.
func (s *Server) RefundPayment(c *gin.Context) {
	paymentID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req refundPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.paymentSvc.Refund(c.Request.Context(), paymentID, req.AmountMinor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPaymentActionResponse(result))
}

// VoidPayment cancels an authorized payment before capture.
func (s *Server) VoidPayment(c *gin.Context) {
	paymentID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	result, err := s.paymentSvc.Void(c.Request.Context(), paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPaymentActionResponse(result))
}

func newPaymentActionResponse(result paymentdomain.Result) paymentActionResponse {
	return paymentActionResponse{
		Success:                result.Success,
		Message:                result.Message,
		AuthorizationReference: result.AuthorizationReference,
	}
}
