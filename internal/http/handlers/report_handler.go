package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// ReportHandler отдаёт дашборд и отчёты по воронке.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler создаёт хэндлер отчётов.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Dashboard обрабатывает GET /api/dashboard.
func (h *ReportHandler) Dashboard(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	dashboard, err := h.reports.Dashboard(c.Request.Context(), userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// InvalidateDashboard обрабатывает POST /api/dashboard/cache/invalidate.
func (h *ReportHandler) InvalidateDashboard(c *gin.Context) {
	if err := h.reports.InvalidateDashboard(c.Request.Context()); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Pipeline обрабатывает GET /api/reports/pipeline.
func (h *ReportHandler) Pipeline(c *gin.Context) {
	report, err := h.reports.PipelineReport(c.Request.Context())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// AIReport обрабатывает POST /api/ai/report.
func (h *ReportHandler) AIReport(c *gin.Context) {
	report, err := h.reports.AIReport(c.Request.Context())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
