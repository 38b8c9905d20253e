package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/confreg/backend/internal/session"
	"github.com/confreg/backend/pkg/response"
)

// RoleLookup resolves the organizer flag for a registration on each request,
// so promotions and demotions apply to live sessions.
type RoleLookup interface {
	IsOrganizer(ctx context.Context, registrationID int64) (bool, error)
}

func isSafeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

// Session resolves the session cookie into a session.Principal on the request context.
// For POST, PUT, PATCH and DELETE requests that carry the cookie it also enforces:
// a live session (401), the X-CSRF-Token header equal to the session token (403) and
// an Origin header equal to uiOrigin (403). Safe methods with a stale cookie proceed
// unauthenticated.
func Session(sessions *session.Manager, roles RoleLookup, uiOrigin string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		id, err := c.Cookie(session.CookieName)
		if err != nil || id == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		unsafe := !isSafeMethod(c.Request.Method)

		sess, err := sessions.Lookup(ctx, id)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				logger.Error("session lookup failed", zap.Error(err))
			}
			if unsafe {
				response.Unauthorized(c, "Session expired or invalid")
				c.Abort()
				return
			}
			c.Next()
			return
		}

		if unsafe {
			if c.GetHeader(session.CSRFHeader) != sess.CSRFToken {
				response.Forbidden(c, "Invalid CSRF token")
				c.Abort()
				return
			}
			if c.GetHeader("Origin") != uiOrigin {
				response.Forbidden(c, "Origin not allowed")
				c.Abort()
				return
			}
		}

		isOrg, err := roles.IsOrganizer(ctx, sess.RegistrationID)
		if err != nil {
			logger.Error("role lookup failed", zap.Error(err), zap.Int64("registration_id", sess.RegistrationID))
			response.Internal(c, "Failed to resolve session")
			c.Abort()
			return
		}
		p := session.Principal{
			RegistrationID: sess.RegistrationID,
			IsOrganizer:    isOrg,
			SessionID:      sess.ID,
			CSRFToken:      sess.CSRFToken,
		}
		c.Request = c.Request.WithContext(session.WithPrincipal(ctx, p))
		c.Next()
	}
}

// RequireSession rejects requests without an authenticated principal.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := session.PrincipalFrom(c.Request.Context()); !ok {
			response.Unauthorized(c, "Login required")
			c.Abort()
			return
		}
		c.Next()
	}
}
