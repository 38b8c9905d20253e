package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/confreg/backend/internal/session"
	"github.com/confreg/backend/pkg/response"
)

// RequireOrganizer allows only principals with the organizer role.
func RequireOrganizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := session.PrincipalFrom(c.Request.Context())
		if !ok {
			response.Unauthorized(c, "Login required")
			c.Abort()
			return
		}
		if !p.IsOrganizer {
			response.Forbidden(c, "Organizer access required")
			c.Abort()
			return
		}
		c.Next()
	}
}
