package registrations

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/confreg/backend/internal/ratelimit"
	"github.com/confreg/backend/internal/session"
	"github.com/confreg/backend/pkg/database"
	"github.com/confreg/backend/pkg/response"
)

const lostPinKeyPrefix = "lost-pin:"

// Handler handles registration and session HTTP endpoints.
type Handler struct {
	svc              *Service
	sessions         *session.Manager
	limiter          ratelimit.Limiter
	organizerContact string
	logger           *zap.Logger
}

// NewHandler creates a registrations handler. limiter may be nil to disable attempt limiting.
func NewHandler(svc *Service, sessions *session.Manager, limiter ratelimit.Limiter, organizerContact string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if organizerContact == "" {
		organizerContact = "the conference organizer"
	}
	return &Handler{svc: svc, sessions: sessions, limiter: limiter, organizerContact: organizerContact, logger: logger}
}

func principal(c *gin.Context) session.Principal {
	p, _ := session.PrincipalFrom(c.Request.Context())
	return p
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "Invalid registration id", gin.H{"id": c.Param("id")})
		return 0, false
	}
	return id, true
}

func bindInput(c *gin.Context) (Input, bool) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.BadRequest(c, "Invalid JSON body")
		return Input{}, false
	}
	in, err := ParseInput(raw)
	if err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			response.Error(c, http.StatusBadRequest, fe.Message(), gin.H{"invalid": fe.Invalid})
			return Input{}, false
		}
		response.BadRequest(c, "Invalid request")
		return Input{}, false
	}
	return in, true
}

// fail maps service errors onto the response taxonomy. Unexpected errors are logged, never echoed.
func (h *Handler) fail(c *gin.Context, err error, msg string, fields ...zap.Field) {
	var fe *FieldError
	var fb *ForbiddenError
	switch {
	case errors.As(err, &fe):
		extra := gin.H{}
		if len(fe.Missing) > 0 {
			extra["missing"] = fe.Missing
		}
		if len(fe.Invalid) > 0 {
			extra["invalid"] = fe.Invalid
		}
		response.Error(c, http.StatusBadRequest, fe.Message(), extra)
	case errors.As(err, &fb):
		if len(fb.Fields) > 0 {
			response.Error(c, http.StatusForbidden, "Only organizers may set these fields", gin.H{"fields": fb.Fields})
			return
		}
		response.Error(c, http.StatusForbidden, "Forbidden", gin.H{"id": fb.ID})
	case errors.Is(err, ErrDuplicate):
		response.Conflict(c, ErrDuplicate.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "Registration not found")
	default:
		h.logger.Error(msg, append(append(database.LogFields(err), zap.String("path", c.FullPath())), fields...)...)
		response.Internal(c, msg)
	}
}

// Create handles POST /api/registrations.
func (h *Handler) Create(c *gin.Context) {
	in, ok := bindInput(c)
	if !ok {
		return
	}
	created, err := h.svc.Create(c.Request.Context(), in, principal(c))
	if err != nil {
		h.fail(c, err, "Failed to create registration")
		return
	}
	h.logger.Info("registration created", zap.Int64("registration_id", created.ID))
	response.Created(c, created)
}

// Login handles GET /api/registrations/login?email=&pin=. On success it starts a session,
// sets the session cookie and returns the registration with the CSRF token.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	email, pin := c.Query("email"), c.Query("pin")
	key := ratelimit.Key(email, c.ClientIP())
	if !h.allow(c, key) {
		return
	}
	reg, err := h.svc.Login(ctx, email, pin)
	if errors.Is(err, ErrNotFound) {
		h.recordFailure(c, key)
		response.NotFound(c, "Invalid email or PIN")
		return
	}
	if err != nil {
		h.fail(c, err, "Failed to log in")
		return
	}
	if h.limiter != nil {
		if err := h.limiter.Reset(ctx, key); err != nil {
			h.logger.Warn("reset attempt limiter failed", zap.Error(err))
		}
	}

	if old, err := c.Cookie(session.CookieName); err == nil && old != "" {
		_ = h.sessions.Destroy(ctx, old)
	}
	sess, err := h.sessions.Create(ctx, reg.ID)
	if err != nil {
		h.fail(c, err, "Failed to start session")
		return
	}
	h.setCookie(c, sess.ID, int(h.sessions.TTL().Seconds()))
	h.logger.Info("login", zap.Int64("registration_id", reg.ID))
	response.OK(c, gin.H{"registration": reg, "csrfToken": sess.CSRFToken})
}

// LostPin handles GET /api/registrations/lost-pin?email=.
func (h *Handler) LostPin(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.Error(c, http.StatusBadRequest, "Missing required fields", gin.H{"missing": []string{"email"}})
		return
	}
	key := ratelimit.Key(lostPinKeyPrefix+email, c.ClientIP())
	if !h.allow(c, key) {
		return
	}
	h.recordFailure(c, key)

	err := h.svc.LostPin(c.Request.Context(), email)
	switch {
	case err == nil:
		response.OK(c, gin.H{"sent": true})
	case errors.Is(err, ErrContactOrganizer):
		response.NotFound(c, "Please contact "+h.organizerContact)
	default:
		h.logger.Error("lost pin failed", zap.Error(err))
		response.Internal(c, ErrSendPin.Error())
	}
}

// Get handles GET /api/registrations/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	reg, err := h.svc.Get(c.Request.Context(), id, principal(c))
	if err != nil {
		h.fail(c, err, "Failed to load registration", zap.Int64("registration_id", id))
		return
	}
	response.OK(c, gin.H{"registration": reg})
}

// Update handles PUT /api/registrations/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	p := principal(c)
	if !p.CanAccess(id) {
		response.Error(c, http.StatusForbidden, "Forbidden", gin.H{"id": id})
		return
	}
	in, ok := bindInput(c)
	if !ok {
		return
	}
	n, reg, err := h.svc.Update(c.Request.Context(), id, in, p)
	if err != nil {
		h.fail(c, err, "Failed to update registration", zap.Int64("registration_id", id))
		return
	}
	response.OK(c, gin.H{"rowsAffected": n, "registration": reg})
}

// List handles GET /api/registrations?role=. Call after RequireOrganizer.
func (h *Handler) List(c *gin.Context) {
	role := c.Query("role")
	if _, ok := roleColumns[role]; role != "" && !ok {
		response.Error(c, http.StatusBadRequest, "Invalid role", gin.H{"roles": Roles()})
		return
	}
	list, err := h.svc.List(c.Request.Context(), role)
	if err != nil {
		h.fail(c, err, "Failed to list registrations")
		return
	}
	response.OK(c, gin.H{"registrations": list})
}

func (h *Handler) allow(c *gin.Context, key string) bool {
	if h.limiter == nil {
		return true
	}
	d, err := h.limiter.Check(c.Request.Context(), key)
	if err != nil {
		h.logger.Warn("attempt limiter unavailable", zap.Error(err))
		return true
	}
	if !d.Allowed {
		response.TooManyRequests(c, "Too many attempts, try again later", d.RetryAfter)
		return false
	}
	return true
}

func (h *Handler) recordFailure(c *gin.Context, key string) {
	if h.limiter == nil {
		return
	}
	if _, err := h.limiter.Fail(c.Request.Context(), key); err != nil {
		h.logger.Warn("record attempt failed", zap.Error(err))
	}
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(session.CookieName, value, maxAge, "/", "", true, true)
}
