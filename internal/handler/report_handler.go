package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heartsound/report-backend-go/internal/middleware"
	"github.com/heartsound/report-backend-go/internal/models"
	"github.com/heartsound/report-backend-go/internal/service"
	"github.com/heartsound/report-backend-go/pkg/response"
)

// ReportHandler handles HTTP requests for report tasks
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler creates a new report handler
func NewReportHandler(service *service.ReportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Submit creates a report task
// POST /api/v1/reports
func (h *ReportHandler) Submit(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.service.Submit(c.Request.Context(), middleware.AdminID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// GetStatus returns one task
// GET /api/v1/reports/:id
func (h *ReportHandler) GetStatus(c *gin.Context) {
	view, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	// Other admins' tasks are indistinguishable from missing ones
	if !middleware.IsSuperAdmin(c) && view.RequesterID != middleware.AdminID(c) {
		response.NotFound(c, "Report task not found")
		return
	}

	response.Success(c, view)
}

// ListHistory lists the caller's tasks, or all tasks for a super admin
// GET /api/v1/reports
func (h *ReportHandler) ListHistory(c *gin.Context) {
	var filter models.HistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	scope := service.HistoryScope{
		RequesterID: middleware.AdminID(c),
		All:         middleware.IsSuperAdmin(c),
	}

	page, err := h.service.ListHistory(c.Request.Context(), scope, filter)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, page)
}

// ReportTypes lists the report catalog
// GET /api/v1/reports/types
func (h *ReportHandler) ReportTypes(c *gin.Context) {
	response.Success(c, h.service.ReportTypes())
}

// ExportFormats lists the formats of one report type
// GET /api/v1/reports/types/:type/formats
func (h *ReportHandler) ExportFormats(c *gin.Context) {
	formats, err := h.service.ExportFormats(c.Param("type"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, formats)
}

// Cleanup runs the retention sweep immediately
// POST /api/v1/reports/cleanup
func (h *ReportHandler) Cleanup(c *gin.Context) {
	result, err := h.service.CleanupExpired(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// GenerateRequest is the body of the internal generation call
type GenerateRequest struct {
	TaskID string `json:"taskId" binding:"required"`
}

// Generate runs generation for a task synchronously
// POST /internal/reports/generate
func (h *ReportHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "taskId is required")
		return
	}

	task, err := h.service.RunGeneration(c.Request.Context(), req.TaskID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTaskNotFound):
			response.NotFound(c, "Report task not found")
		case errors.Is(err, models.ErrInvalidTransition):
			response.Error(c, http.StatusConflict, "Report task is not pending")
		default:
			response.InternalError(c, "Report generation failed")
		}
		return
	}

	response.Success(c, gin.H{
		"success":  true,
		"fileName": task.File.Name,
		"fileSize": task.File.Size,
	})
}

// writeError maps service errors onto the response envelope
func writeError(c *gin.Context, err error) {
	switch {
	case models.IsValidationError(err):
		response.BadRequest(c, err.Error())
	case errors.Is(err, models.ErrTaskNotFound):
		response.NotFound(c, "Report task not found")
	default:
		_ = c.Error(err)
		response.InternalError(c, "Internal server error")
	}
}
