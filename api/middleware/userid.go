package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/payradar/payradar/internal/utils"
)

const UserIDHeader = "X-USER-ID"

// UserIDMiddleware copies the caller's user id header into the request
// context so services and repositories can scope queries without touching
// gin.
func UserIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(UserIDHeader); userID != "" {
			ctx := utils.WithUserID(c.Request.Context(), userID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
