package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clientdocs-backend/internal/shared/server/respond"
)

const (
	orgIDKey  = "organizationId"
	userIDKey = "userId"
)

// Tenant reads the caller identity established by the upstream gateway
// and stores it in the request context. Identity verification itself is
// the surrounding application's concern; this service only requires that
// every request arrives scoped to an organization and a user.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		orgID := strings.TrimSpace(c.GetHeader("X-Organization-Id"))
		userID := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if orgID == "" || userID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing organization or user identity", nil)
			return
		}

		c.Set(orgIDKey, orgID)
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// OrgIDFromContext returns the organization ID stored by Tenant.
func OrgIDFromContext(c *gin.Context) string {
	return c.GetString(orgIDKey)
}

// UserIDFromContext returns the user ID stored by Tenant.
func UserIDFromContext(c *gin.Context) string {
	return c.GetString(userIDKey)
}
