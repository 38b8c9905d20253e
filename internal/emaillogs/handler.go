package emaillogs

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/confreg/backend/pkg/database"
	"github.com/confreg/backend/pkg/response"
)

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /api/rsvp/emails?type=&limit=. Call after RequireOrganizer.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.repo.List(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		h.logger.Error("list email logs failed", database.LogFields(err)...)
		response.Internal(c, "Failed to load email logs")
		return
	}
	response.OK(c, gin.H{"emails": logs})
}
