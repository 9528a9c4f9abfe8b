package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/windingtree/orgid-migrator/internal/api/dto"
	"github.com/windingtree/orgid-migrator/internal/content"
	"github.com/windingtree/orgid-migrator/internal/domain"
)

// maxUploadSize bounds uploaded file bodies.
const maxUploadSize = 10 << 20

// UploadFile handles POST /api/v1/files
// Publishes a multipart-uploaded file to the content store
func (h *FileHandler) UploadFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "File not been uploaded",
		})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "File too large",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Message: "Internal server error",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		h.logger.Error("Failed to read uploaded file", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Message: "Internal server error",
		})
		return
	}

	cid, err := h.content.Publish(c.Request.Context(), data, fileHeader.Filename)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UploadedFile{URL: h.content.GatewayURL(cid)})
}

// UploadFileByURI handles POST /api/v1/files/uri
// Fetches an image by URI and re-publishes it to the content store
func (h *FileHandler) UploadFileByURI(c *gin.Context) {
	var req dto.UploadURIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "Invalid request body",
		})
		return
	}

	data, err := h.content.Resolve(c.Request.Context(), req.URI)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ext, err := content.ImageType(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "Unsupported file type",
		})
		return
	}

	name := fmt.Sprintf("%s.%s", uuid.NewString()[:8], ext)
	cid, err := h.content.Publish(c.Request.Context(), data, name)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UploadedFile{URL: h.content.GatewayURL(cid)})
}

func (h *FileHandler) respondError(c *gin.Context, err error) {
	status := domain.StatusOf(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("File operation failed", slog.Any("error", err))
		message = "Internal server error"
	}
	c.JSON(status, dto.ErrorResponse{Message: message})
}
