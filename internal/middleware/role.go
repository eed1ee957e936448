package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"servicemarket/internal/domain"
	"servicemarket/internal/pkg/response"
)

// RequireRole ensures that the authenticated user has one of the given roles
func RequireRole(roles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ctxRole)
		if !exists {
			response.Abort(c, http.StatusUnauthorized, domain.CodeUnauthorized, "Role not found in token")
			return
		}

		for _, r := range roles {
			if role.(string) == string(r) {
				c.Next()
				return
			}
		}
		response.Abort(c, http.StatusForbidden, domain.CodeForbidden, "Access denied: insufficient permissions")
	}
}
