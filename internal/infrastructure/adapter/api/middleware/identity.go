package middleware

import (
	"strings"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/gin-gonic/gin"
)

// UserIDHeader is set by the upstream auth gateway to the authenticated user
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// RequireUser rejects requests without an acting identity
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			RespondError(c, errs.NewValidationError(UserIDHeader, "header is required"))
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the identity stored by RequireUser
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
