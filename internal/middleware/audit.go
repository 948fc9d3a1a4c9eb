package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/service"
)

// AuditOrigin stores the client address and user agent on the request context
// for the audit trail.
func AuditOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithRequestOrigin(c.Request.Context(), c.ClientIP(), c.GetHeader("User-Agent"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
