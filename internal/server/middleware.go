package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/storefront/internal/observability/context"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
)

// AdminAuthRequired guards the admin group with the configured basic-auth
// account. Without a password the admin surface is switched off. The
// authenticated user becomes the actor on audit entries.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	username := strings.TrimSpace(s.cfg.Admin.Username)
	password := s.cfg.Admin.Password
	if username == "" || password == "" {
		return func(c *gin.Context) {
			obslogger.FromContext(c.Request.Context()).Warn("admin request rejected, ADMIN_PASSWORD not set")
			AbortWithError(c, ErrServiceUnavailable)
		}
	}

	basicAuth := gin.BasicAuthForRealm(gin.Accounts{username: password}, "storefront admin")
	return func(c *gin.Context) {
		basicAuth(c)
		if c.IsAborted() {
			return
		}
		actor := c.GetString(gin.AuthUserKey)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actor))
	}
}

// orderNumberParam reads order_number from the query string or a form body.
func orderNumberParam(c *gin.Context) string {
	orderNumber := strings.TrimSpace(c.Query("order_number"))
	if orderNumber == "" {
		orderNumber = strings.TrimSpace(c.PostForm("order_number"))
	}
	if orderNumber != "" {
		c.Set("order_number", orderNumber)
	}
	return orderNumber
}
