package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	catalogdomain "github.com/smallbiznis/storefront/internal/catalog/domain"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	waitlistdomain "github.com/smallbiznis/storefront/internal/waitlist/domain"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"go.uber.org/zap"
)

const (
	rateLimitEndpointWaitlist = "waitlist"
	rateLimitReasonIP         = "ip-rate"
	rateLimitReasonEmail      = "email-rate"

	messageRateLimited = "Too many requests. Please try again later."
	messageInvalid     = "Could not join the waitlist. Please try again."
)

// flexibleID accepts an id sent as a JSON number or string, or as a form value.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*f = flexibleID(strings.TrimSpace(text))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*f = flexibleID(number.String())
	return nil
}

func (f *flexibleID) UnmarshalParam(param string) error {
	*f = flexibleID(strings.TrimSpace(param))
	return nil
}

func (f flexibleID) snowflake() (snowflake.ID, bool) {
	parsed, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return snowflake.ID(parsed), true
}

type waitlistRequest struct {
	Email     string     `json:"email" form:"email"`
	VariantID flexibleID `json:"variant_id" form:"variant_id"`
}

type waitlistResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateWaitlistEntry signs a customer up for a back-in-stock email.
func (s *Server) CreateWaitlistEntry(c *gin.Context) {
	ctx := c.Request.Context()
	log := obslogger.FromContext(ctx)

	if !s.allowWaitlist(c, rateLimitReasonIP, func() (*ratelimit.Result, error) {
		return s.waitlistLimiter.AllowIP(ctx, c.ClientIP())
	}) {
		return
	}

	var req waitlistRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, waitlistResponse{Error: messageInvalid})
		return
	}

	variantID, ok := req.VariantID.snowflake()
	if !ok {
		c.JSON(http.StatusNotFound, waitlistResponse{Error: waitlistdomain.MessageVariantNotFound})
		return
	}

	if !s.allowWaitlist(c, rateLimitReasonEmail, func() (*ratelimit.Result, error) {
		return s.waitlistLimiter.AllowEmail(ctx, req.Email)
	}) {
		return
	}

	entry, err := s.waitlistSvc.Subscribe(ctx, waitlistdomain.SubscribeRequest{
		Email:     req.Email,
		VariantID: variantID,
	})
	if err != nil {
		var fieldErrs validation.Errors
		switch {
		case errors.Is(err, catalogdomain.ErrVariantNotFound):
			c.JSON(http.StatusNotFound, waitlistResponse{Error: waitlistdomain.MessageVariantNotFound})
		case errors.Is(err, waitlistdomain.ErrAlreadyWaitlisted):
			c.JSON(http.StatusUnprocessableEntity, waitlistResponse{Error: waitlistdomain.MessageAlreadyWaitlisted})
		case errors.As(err, &fieldErrs):
			c.JSON(http.StatusUnprocessableEntity, waitlistResponse{Error: firstFieldMessage(fieldErrs)})
		default:
			log.Error("waitlist subscribe failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, waitlistResponse{Error: messageInvalid})
		}
		return
	}

	log.Info("waitlist entry created",
		zap.String("entry_id", entry.ID.String()),
		zap.String("variant_id", entry.VariantID.String()),
	)
	c.JSON(http.StatusOK, waitlistResponse{Success: true, Message: waitlistdomain.MessageSubscribed})
}

// allowWaitlist applies one limiter check. Limiter outages let the request through.
func (s *Server) allowWaitlist(c *gin.Context, reason string, check func() (*ratelimit.Result, error)) bool {
	ctx := c.Request.Context()
	if !s.waitlistLimiter.Enabled() {
		return true
	}

	result, err := check()
	if err != nil {
		obslogger.FromContext(ctx).Warn("waitlist rate limit check failed", zap.String("reason", reason), zap.Error(err))
		return true
	}
	if result.Allowed {
		s.obsMetrics.RecordRateLimitAllowed(ctx, rateLimitEndpointWaitlist)
		return true
	}

	s.obsMetrics.RecordRateLimitDenied(ctx, rateLimitEndpointWaitlist, reason)
	if result.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds()+0.999)))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, waitlistResponse{Error: messageRateLimited})
	return false
}

// firstFieldMessage renders the first field error as a sentence, e.g. "Email cannot be blank".
func firstFieldMessage(fieldErrs validation.Errors) string {
	vErrs := fromFieldErrors(fieldErrs)
	if len(vErrs.Errors) == 0 {
		return messageInvalid
	}
	first := vErrs.Errors[0]
	label := strings.ReplaceAll(first.Field, "_", " ")
	if label == "" {
		return first.Message
	}
	return strings.ToUpper(label[:1]) + label[1:] + " " + first.Message
}

type listWaitlistEntriesQuery struct {
	PageToken   string `form:"page_token"`
	PageSize    int    `form:"page_size"`
	VariantID   string `form:"variant_id"`
	Email       string `form:"email"`
	PendingOnly string `form:"pending_only"`
}

// ListWaitlistEntries lists entries newest first for the admin.
func (s *Server) ListWaitlistEntries(c *gin.Context) {
	var query listWaitlistEntriesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pendingOnly, err := parseOptionalBool(query.PendingOnly)
	if err != nil {
		AbortWithError(c, newValidationError("pending_only", "invalid_pending_only", "invalid pending_only"))
		return
	}

	resp, err := s.waitlistSvc.List(c.Request.Context(), waitlistdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		VariantID:   strings.TrimSpace(query.VariantID),
		Email:       strings.TrimSpace(query.Email),
		PendingOnly: pendingOnly != nil && *pendingOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}
