package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/windingtree/orgid-migrator/internal/api/dto"
	"github.com/windingtree/orgid-migrator/internal/domain"
)

// GetOwned handles GET /api/v1/dids/:owner
// Lists the identities owned by an address together with their
// migration status and display metadata
func (h *OrgIDHandler) GetOwned(c *gin.Context) {
	owner := c.Param("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "owner is required",
		})
		return
	}

	owned, err := h.dids.Owned(c.Request.Context(), owner)
	if err != nil {
		status := domain.StatusOf(err)
		message := err.Error()
		if status >= http.StatusInternalServerError {
			h.logger.Error("Owned listing failed",
				slog.String("owner", owner),
				slog.Any("error", err),
			)
			message = "Internal server error"
		}
		c.JSON(status, dto.ErrorResponse{Message: message})
		return
	}

	c.JSON(http.StatusOK, owned)
}
