package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"servicemarket/internal/domain"
	"servicemarket/internal/pkg/jwt"
	"servicemarket/internal/pkg/response"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
	ctxName   = "name"
)

// JWTAuth requires a valid bearer access token and stores its identity on the context.
func JWTAuth(tokens *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			response.Abort(c, http.StatusUnauthorized, domain.CodeUnauthorized, "Missing Authorization header")
			return
		}

		if !strings.HasPrefix(h, "Bearer ") {
			response.Abort(c, http.StatusUnauthorized, domain.CodeUnauthorized, "Invalid Authorization header format")
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		if tokenStr == "" {
			response.Abort(c, http.StatusUnauthorized, domain.CodeUnauthorized, "Empty token")
			return
		}

		claims, err := tokens.ValidateToken(tokenStr)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, domain.CodeUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxName, claims.Name)

		c.Next()
	}
}

// Actor returns the authenticated caller set by JWTAuth.
func Actor(c *gin.Context) domain.Actor {
	return domain.Actor{
		UserID: c.GetInt64(ctxUserID),
		Role:   domain.UserRole(c.GetString(ctxRole)),
	}
}
