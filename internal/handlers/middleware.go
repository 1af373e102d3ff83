package handler

import (
	"strings"

	"recon-service/internal/tenant"

	"github.com/gin-gonic/gin"
)

// UserHeader carries the caller identity set by the gateway in front of us.
const UserHeader = "X-User-ID"

// CallerIdentity moves the caller id from the request header into the request
// context. Requests without it fail later at tenant resolution.
func CallerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(UserHeader)); id != "" {
			c.Request = c.Request.WithContext(tenant.WithUser(c.Request.Context(), id))
		}
		c.Next()
	}
}
