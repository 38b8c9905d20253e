package rsvp

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/confreg/backend/internal/registrations"
	"github.com/confreg/backend/pkg/database"
	"github.com/confreg/backend/pkg/response"
)

const (
	// MaxUploadBytes caps the CSV file size.
	MaxUploadBytes = 2 << 20
	// FormField is the multipart field holding the CSV file.
	FormField = "file"
	// multipart framing allowance on top of the file itself
	formOverhead = 64 << 10
)

// AllowedTypes are the accepted upload MIME types.
var AllowedTypes = map[string]bool{
	"text/csv":                    true,
	"application/csv":             true,
	"text/comma-separated-values": true,
	"application/vnd.ms-excel":    true,
	"text/plain":                  true,
}

// Handler handles RSVP HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an RSVP handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Upload handles POST /api/rsvp/upload (multipart, field "file"). Call after RequireOrganizer.
func (h *Handler) Upload(c *gin.Context) {
	if err := h.svc.notifier.CheckConfig(); err != nil {
		h.logger.Error("rsvp upload: mail not configured", zap.Error(err))
		response.Internal(c, "RSVP email is not configured")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes+formOverhead)
	fh, err := c.FormFile(FormField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.PayloadTooLarge(c, "File too large", MaxUploadBytes)
			return
		}
		response.BadRequest(c, "Missing CSV file in field \""+FormField+"\"")
		return
	}
	if fh.Size > MaxUploadBytes {
		response.PayloadTooLarge(c, "File too large", MaxUploadBytes)
		return
	}
	if !allowedType(fh.Header.Get("Content-Type")) {
		response.Error(c, http.StatusBadRequest, "Unsupported file type", gin.H{"contentType": fh.Header.Get("Content-Type")})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.logger.Error("open upload failed", zap.Error(err))
		response.Internal(c, "Failed to read upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxUploadBytes+1))
	if err != nil {
		h.logger.Error("read upload failed", zap.Error(err))
		response.Internal(c, "Failed to read upload")
		return
	}
	if len(data) > MaxUploadBytes {
		response.PayloadTooLarge(c, "File too large", MaxUploadBytes)
		return
	}

	res, err := h.svc.Upload(c.Request.Context(), data)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, res)
}

// Remind handles POST /api/rsvp/remind. Call after RequireOrganizer.
func (h *Handler) Remind(c *gin.Context) {
	res, err := h.svc.Remind(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) fail(c *gin.Context, err error) {
	var pe *ParseError
	var ie *IssuesError
	switch {
	case errors.As(err, &pe):
		response.Error(c, http.StatusBadRequest, "Could not parse CSV", gin.H{"issues": []Issue{{Row: pe.Line, Problems: []string{pe.Msg}}}})
	case errors.As(err, &ie):
		response.Error(c, http.StatusBadRequest, "CSV has problems; nothing was imported", gin.H{"issues": ie.Issues})
	case errors.Is(err, ErrNoRows):
		response.Error(c, http.StatusBadRequest, ErrNoRows.Error(), gin.H{"issues": []Issue{}})
	case errors.Is(err, registrations.ErrDuplicate):
		response.Conflict(c, registrations.ErrDuplicate.Error())
	case errors.Is(err, ErrNotConfigured):
		h.logger.Error("rsvp mail not configured", zap.Error(err))
		response.Internal(c, "RSVP email is not configured")
	default:
		h.logger.Error("rsvp request failed", database.LogFields(err)...)
		response.Internal(c, "RSVP processing failed")
	}
}

func allowedType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return AllowedTypes[strings.ToLower(mt)]
}
