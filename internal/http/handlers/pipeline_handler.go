package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/dto"
	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// PipelineHandler обслуживает этапы воронки и доску сделок.
type PipelineHandler struct {
	pipeline *service.PipelineService
}

// NewPipelineHandler создаёт хэндлер воронки.
func NewPipelineHandler(pipeline *service.PipelineService) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline}
}

// Stages обрабатывает GET /api/pipeline/stages.
func (h *PipelineHandler) Stages(c *gin.Context) {
	stages, err := h.pipeline.Stages(c.Request.Context())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, stages)
}

// CreateStage обрабатывает POST /api/pipeline/stages.
func (h *PipelineHandler) CreateStage(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req dto.StageRequest
	if !common.BindJSON(c, &req) {
		return
	}

	stage, err := h.pipeline.CreateStage(c.Request.Context(), actor, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stage)
}

// UpdateStage обрабатывает PUT /api/pipeline/stages/:id.
func (h *PipelineHandler) UpdateStage(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.StageRequest
	if !common.BindJSON(c, &req) {
		return
	}

	stage, err := h.pipeline.UpdateStage(c.Request.Context(), actor, id, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, stage)
}

// DeleteStage обрабатывает DELETE /api/pipeline/stages/:id.
func (h *PipelineHandler) DeleteStage(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.pipeline.DeleteStage(c.Request.Context(), actor, id); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reorder обрабатывает PUT /api/pipeline/stages/reorder.
func (h *PipelineHandler) Reorder(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req struct {
		StageIDs []uuid.UUID `json:"stage_ids" binding:"required"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	stages, err := h.pipeline.Reorder(c.Request.Context(), actor, req.StageIDs)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, stages)
}

// Board обрабатывает GET /api/pipeline/board.
func (h *PipelineHandler) Board(c *gin.Context) {
	columns, err := h.pipeline.Board(c.Request.Context())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": columns})
}
