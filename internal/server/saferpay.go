package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	pathCart            = "/cart"
	pathCheckoutPayment = "/checkout/payment"
	pathOrderPrefix     = "/orders/"

	flashSuccess = "success"
	flashNotice  = "notice"
	flashError   = "error"

	flashMaxAge = 60
)

// SaferpaySuccess handles the customer returning from the payment page.
func (s *Server) SaferpaySuccess(c *gin.Context) {
	orderNumber := orderNumberParam(c)
	outcome := s.paymentSvc.HandleSuccess(c.Request.Context(), orderNumber)
	s.redirectWithOutcome(c, outcome)
}

// SaferpayFail handles the customer cancelling or failing on the payment page.
func (s *Server) SaferpayFail(c *gin.Context) {
	orderNumber := orderNumberParam(c)
	outcome := s.paymentSvc.HandleFail(c.Request.Context(), orderNumber)
	s.redirectWithOutcome(c, outcome)
}

// SaferpayNotify answers the processor's server-to-server callback with a bare status.
func (s *Server) SaferpayNotify(c *gin.Context) {
	orderNumber := orderNumberParam(c)
	status := s.paymentSvc.HandleNotify(c.Request.Context(), orderNumber)

	switch status {
	case paymentdomain.NotifyOK:
		c.Status(http.StatusOK)
	case paymentdomain.NotifyNotFound:
		c.Status(http.StatusNotFound)
	default:
		c.Status(http.StatusInternalServerError)
	}
	c.Writer.WriteHeaderNow()
}

// SaferpayCheckout opens a payment page session for an order awaiting payment.
func (s *Server) SaferpayCheckout(c *gin.Context) {
	orderNumber := strings.TrimSpace(c.Param("order_number"))
	c.Set("order_number", orderNumber)
	log := obslogger.FromContext(c.Request.Context()).With(zap.String("order_number", orderNumber))

	result, err := s.paymentSvc.Initialize(c.Request.Context(), orderNumber, s.cfg.StorefrontURL)
	if err != nil {
		var protocolErr *paymentdomain.GatewayProtocolError
		switch {
		case errors.Is(err, paymentdomain.ErrOrderNotFound):
			s.redirectWithFlash(c, pathCart, flashError, paymentdomain.MessageOrderNotFound)
		case errors.As(err, &protocolErr):
			log.Warn("saferpay initialize rejected", zap.String("code", protocolErr.Code), zap.Error(err))
			s.redirectWithFlash(c, pathCheckoutPayment, flashError, "Payment initialization failed: "+protocolErr.Message)
		default:
			log.Error("saferpay initialize failed", zap.Error(err))
			s.redirectWithFlash(c, pathCheckoutPayment, flashError, paymentdomain.MessageInitFailed)
		}
		return
	}

	log.Info("redirecting to saferpay payment page", zap.String("payment_id", result.PaymentID.String()))
	c.Redirect(http.StatusFound, result.RedirectURL)
}

func (s *Server) redirectWithOutcome(c *gin.Context, outcome paymentdomain.Outcome) {
	switch outcome.Kind {
	case paymentdomain.OutcomeSuccess:
		s.redirectWithFlash(c, pathOrderPrefix+outcome.OrderNumber, flashSuccess, outcome.Message)
	case paymentdomain.OutcomePending:
		s.redirectWithFlash(c, pathOrderPrefix+outcome.OrderNumber, flashNotice, outcome.Message)
	case paymentdomain.OutcomeOrderNotFound, paymentdomain.OutcomePaymentNotFound:
		s.redirectWithFlash(c, pathCart, flashError, outcome.Message)
	default:
		s.redirectWithFlash(c, pathCheckoutPayment, flashError, outcome.Message)
	}
}

// redirectWithFlash stores a one-shot message for the storefront to render after the redirect.
func (s *Server) redirectWithFlash(c *gin.Context, location, kind, message string) {
	if message != "" {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie("flash_"+kind, message, flashMaxAge, "/", "", s.cfg.IsProduction(), true)
	}
	c.Redirect(http.StatusFound, location)
}
