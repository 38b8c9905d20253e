// Package presenters serves presenter photos.
package presenters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/confreg/backend/internal/models"
	"github.com/confreg/backend/internal/registrations"
	"github.com/confreg/backend/internal/session"
	"github.com/confreg/backend/pkg/response"
	"github.com/confreg/backend/pkg/storage"
)

const (
	// FormField is the multipart field holding the photo.
	FormField    = "photo"
	formOverhead = 64 << 10
	sniffLen     = 512
)

// Records reads and updates the registration a photo belongs to. *registrations.Repository satisfies it.
type Records interface {
	GetByID(ctx context.Context, id int64) (*models.Registration, error)
	SetPhotoPath(ctx context.Context, id int64, path string) error
}

// Handler handles presenter photo endpoints.
type Handler struct {
	records  Records
	store    storage.ObjectStore
	maxBytes int64
	logger   *zap.Logger
}

// NewHandler creates a presenters handler.
func NewHandler(records Records, store storage.ObjectStore, maxBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{records: records, store: store, maxBytes: maxBytes, logger: logger}
}

// Config handles GET /api/config.
func (h *Handler) Config(c *gin.Context) {
	response.OK(c, gin.H{"presenterMaxBytes": h.maxBytes})
}

// authorize parses :id and checks owner-or-organizer access.
func (h *Handler) authorize(c *gin.Context) (int64, session.Principal, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "Invalid registration id", gin.H{"id": c.Param("id")})
		return 0, session.Principal{}, false
	}
	p, _ := session.PrincipalFrom(c.Request.Context())
	if !p.CanAccess(id) {
		response.Error(c, http.StatusForbidden, "Forbidden", gin.H{"id": id})
		return 0, p, false
	}
	return id, p, true
}

func (h *Handler) load(c *gin.Context, id int64) (*models.Registration, bool) {
	reg, err := h.records.GetByID(c.Request.Context(), id)
	if errors.Is(err, registrations.ErrNotFound) {
		response.NotFound(c, "Registration not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("load registration failed", zap.Error(err), zap.Int64("registration_id", id))
		response.Internal(c, "Failed to load registration")
		return nil, false
	}
	return reg, true
}

// Photo handles GET /api/presenters/:id/photo. Organizers receive the photo as an attachment.
func (h *Handler) Photo(c *gin.Context) {
	id, p, ok := h.authorize(c)
	if !ok {
		return
	}
	reg, ok := h.load(c, id)
	if !ok {
		return
	}
	key := reg.PresenterPhotoPath
	if key == "" {
		response.NotFound(c, "No photo on file")
		return
	}
	if !storage.SafeKey(key) {
		h.logger.Warn("unsafe stored photo path", zap.Int64("registration_id", id), zap.String("path", key))
		response.BadRequest(c, "Invalid photo path")
		return
	}
	body, contentType, err := h.store.Open(c.Request.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		response.NotFound(c, "Photo not found")
		return
	}
	if err != nil {
		h.logger.Error("open photo failed", zap.Error(err), zap.String("key", key))
		response.Internal(c, "Failed to load photo")
		return
	}
	defer body.Close()

	headers := map[string]string{"Cache-Control": "private, max-age=300"}
	if p.IsOrganizer {
		headers["Content-Disposition"] = fmt.Sprintf("attachment; filename=%q", path.Base(key))
	}
	c.DataFromReader(http.StatusOK, -1, contentType, body, headers)
}

// Upload handles POST /api/presenters/:id/photo (multipart field "photo").
func (h *Handler) Upload(c *gin.Context) {
	id, _, ok := h.authorize(c)
	if !ok {
		return
	}
	if _, ok := h.load(c, id); !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+formOverhead)
	fh, err := c.FormFile(FormField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.PayloadTooLarge(c, "Photo too large", h.maxBytes)
			return
		}
		response.BadRequest(c, "Missing photo in field \""+FormField+"\"")
		return
	}
	if fh.Size > h.maxBytes {
		response.PayloadTooLarge(c, "Photo too large", h.maxBytes)
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.logger.Error("open upload failed", zap.Error(err))
		response.Internal(c, "Failed to read upload")
		return
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.logger.Error("read upload failed", zap.Error(err))
		response.Internal(c, "Failed to read upload")
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, allowed := storage.AllowedPhotoTypes[contentType]
	if !allowed {
		response.Error(c, http.StatusBadRequest, "Unsupported file type", gin.H{"contentType": contentType})
		return
	}

	key := storage.PhotoKey(strconv.FormatInt(id, 10), uuid.NewString(), ext)
	body := io.MultiReader(bytes.NewReader(head), f)
	if err := h.store.Save(c.Request.Context(), key, contentType, body, fh.Size); err != nil {
		h.logger.Error("save photo failed", zap.Error(err), zap.String("key", key))
		response.Internal(c, "Failed to store photo")
		return
	}
	if err := h.records.SetPhotoPath(c.Request.Context(), id, key); err != nil {
		h.logger.Error("record photo path failed", zap.Error(err), zap.Int64("registration_id", id))
		response.Internal(c, "Failed to store photo")
		return
	}
	h.logger.Info("presenter photo stored", zap.Int64("registration_id", id), zap.String("key", key))
	response.Created(c, gin.H{"presenterPhotoPath": key})
}
