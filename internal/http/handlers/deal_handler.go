package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/dto"
	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// DealHandler обслуживает сделки.
type DealHandler struct {
	deals *service.DealService
}

// NewDealHandler создаёт хэндлер сделок.
func NewDealHandler(deals *service.DealService) *DealHandler {
	return &DealHandler{deals: deals}
}

// Create обрабатывает POST /api/deals.
func (h *DealHandler) Create(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req dto.DealRequest
	if !common.BindJSON(c, &req) {
		return
	}

	deal, err := h.deals.Create(c.Request.Context(), actor, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deal)
}

// List обрабатывает GET /api/deals.
func (h *DealHandler) List(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	f := models.DealFilter{Status: c.Query("status"), Limit: limit, Offset: offset}

	var err error
	for key, dst := range map[string]**uuid.UUID{
		"stage_id":   &f.StageID,
		"owner_id":   &f.OwnerID,
		"contact_id": &f.ContactID,
	} {
		if *dst, err = common.OptionalUUIDQuery(c, key); err != nil {
			common.RespondBadRequest(c, err.Error())
			return
		}
	}

	items, total, err := h.deals.List(c.Request.Context(), f)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondList(c, items, total, limit, offset)
}

// Get обрабатывает GET /api/deals/:id.
func (h *DealHandler) Get(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	deal, err := h.deals.Get(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// Update обрабатывает PUT /api/deals/:id.
func (h *DealHandler) Update(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.DealRequest
	if !common.BindJSON(c, &req) {
		return
	}

	deal, err := h.deals.Update(c.Request.Context(), id, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// Delete обрабатывает DELETE /api/deals/:id.
func (h *DealHandler) Delete(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.deals.Delete(c.Request.Context(), id); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MoveStage обрабатывает PUT /api/deals/:id/stage.
func (h *DealHandler) MoveStage(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		StageID uuid.UUID `json:"stage_id" binding:"required"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	deal, err := h.deals.MoveStage(c.Request.Context(), actor, id, req.StageID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}
