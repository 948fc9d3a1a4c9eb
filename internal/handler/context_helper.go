package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/middleware"
)

// actorID returns the caller recorded by the JWT middleware, or an empty string.
func actorID(c *gin.Context) string {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return ""
	}
	return claims.UserID
}
