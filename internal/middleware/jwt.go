package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sheets-etl/internal/service"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
	"github.com/noah-isme/sheets-etl/pkg/response"
)

// ContextTriggerKey is the gin context key storing the caller's token claims.
const ContextTriggerKey = "triggerClaims"

// TriggerAuth protects routes by requiring a valid trigger token.
func TriggerAuth(authService *service.TriggerAuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextTriggerKey, claims)
		c.Next()
	}
}
