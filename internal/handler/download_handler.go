package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/heartsound/report-backend-go/internal/storage"
	"github.com/heartsound/report-backend-go/pkg/response"
)

// DownloadHandler serves files from the local blob store behind signed links
type DownloadHandler struct {
	store *storage.LocalStore
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(store *storage.LocalStore) *DownloadHandler {
	return &DownloadHandler{store: store}
}

// Download streams the file a token points at
// GET /files/download?token=
func (h *DownloadHandler) Download(c *gin.Context) {
	fullPath, name, err := h.store.Resolve(c.Query("token"))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			response.NotFound(c, "File not found")
			return
		}
		response.Forbidden(c, "Download link is invalid or expired")
		return
	}

	c.FileAttachment(fullPath, name)
}
