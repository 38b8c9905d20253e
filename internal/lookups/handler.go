package lookups

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/confreg/backend/pkg/database"
	"github.com/confreg/backend/pkg/response"
)

// Handler handles validation-table HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a lookups handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Values handles GET /api/validation-tables/:table.
func (h *Handler) Values(c *gin.Context) {
	table := strings.TrimSpace(c.Param("table"))
	if table == "" {
		response.BadRequest(c, "Missing validation table name")
		return
	}
	values, err := h.repo.Values(c.Request.Context(), table)
	if err != nil {
		h.logger.Error("load validation table failed", append(database.LogFields(err), zap.String("table", table))...)
		response.Internal(c, "Failed to load validation table")
		return
	}
	response.OK(c, gin.H{"values": values})
}
