package registrations

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/confreg/backend/internal/session"
	"github.com/confreg/backend/pkg/response"
)

// Session handles GET /api/session.
func (h *Handler) Session(c *gin.Context) {
	p := principal(c)
	if !p.Authenticated() {
		response.OK(c, gin.H{"authenticated": false})
		return
	}
	response.OK(c, gin.H{
		"authenticated":  true,
		"registrationId": p.RegistrationID,
		"isOrganizer":    p.IsOrganizer,
		"csrfToken":      p.CSRFToken,
	})
}

// Logout handles POST /api/session/logout. The session is destroyed unconditionally.
func (h *Handler) Logout(c *gin.Context) {
	if id, err := c.Cookie(session.CookieName); err == nil && id != "" {
		if err := h.sessions.Destroy(c.Request.Context(), id); err != nil {
			h.logger.Warn("destroy session failed", zap.Error(err))
		}
	}
	h.setCookie(c, "", -1)
	response.OK(c, gin.H{"ok": true})
}
