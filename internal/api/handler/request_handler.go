package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/windingtree/orgid-migrator/internal/api/dto"
	"github.com/windingtree/orgid-migrator/internal/domain"
)

// CreateRequest handles POST /api/v1/requests
// Validates and enqueues a migration request
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	var req dto.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "Invalid request body",
		})
		return
	}

	status, err := h.requests.Add(c.Request.Context(), domain.MigrationRequest{
		DID:     req.DID,
		Chain:   req.Chain,
		OrgIDVC: req.OrgIDVC,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetRequest handles GET /api/v1/requests/:id
// Returns the status of a migration request by job id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "id is required",
		})
		return
	}

	status, err := h.requests.ByJobID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetRequestByDID handles GET /api/v1/requests/did/:did
// Returns the migration status of a DID, ready when none is in flight
func (h *RequestHandler) GetRequestByDID(c *gin.Context) {
	did := c.Param("did")
	if did == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "did is required",
		})
		return
	}

	status, err := h.requests.ByDID(c.Request.Context(), did)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// Reset handles POST /api/v1/admin/reset
// Destroys all queue and index state; refused in production
func (h *RequestHandler) Reset(c *gin.Context) {
	if h.environment == "production" {
		c.JSON(http.StatusForbidden, dto.ErrorResponse{
			Message: "reset is not allowed in production",
		})
		return
	}

	if err := h.requests.Reset(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// respondError maps a service error to its HTTP status, hiding internal
// detail for 5xx responses.
func (h *RequestHandler) respondError(c *gin.Context, err error) {
	status := domain.StatusOf(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		message = "Internal server error"
	}
	c.JSON(status, dto.ErrorResponse{Message: message})
}
