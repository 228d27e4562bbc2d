package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// ActivityHandler обслуживает журнал активностей.
type ActivityHandler struct {
	activities *service.ActivityService
}

// NewActivityHandler создаёт хэндлер активностей.
func NewActivityHandler(activities *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

// Create обрабатывает POST /api/activities.
func (h *ActivityHandler) Create(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req struct {
		Type        string     `json:"type"`
		Subject     string     `json:"subject"`
		Description *string    `json:"description"`
		ContactID   *uuid.UUID `json:"contact_id"`
		DealID      *uuid.UUID `json:"deal_id"`
		DueAt       *time.Time `json:"due_at"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	activity, err := h.activities.Create(c.Request.Context(), actor, service.ActivityInput{
		Type:        req.Type,
		Subject:     req.Subject,
		Description: req.Description,
		ContactID:   req.ContactID,
		DealID:      req.DealID,
		DueAt:       req.DueAt,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, activity)
}

// List обрабатывает GET /api/activities.
func (h *ActivityHandler) List(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	f := models.ActivityFilter{Type: c.Query("type"), Limit: limit, Offset: offset}

	var err error
	if f.ContactID, err = common.OptionalUUIDQuery(c, "contact_id"); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if f.DealID, err = common.OptionalUUIDQuery(c, "deal_id"); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if f.UserID, err = common.OptionalUUIDQuery(c, "user_id"); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if raw := c.Query("pending"); raw != "" {
		pending, err := strconv.ParseBool(raw)
		if err != nil {
			common.RespondBadRequest(c, "параметр pending должен быть true или false")
			return
		}
		f.Pending = &pending
	}

	items, total, err := h.activities.List(c.Request.Context(), f)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondList(c, items, total, limit, offset)
}

// Complete обрабатывает PUT /api/activities/:id/complete.
func (h *ActivityHandler) Complete(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	activity, err := h.activities.Complete(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, activity)
}

// Delete обрабатывает DELETE /api/activities/:id.
func (h *ActivityHandler) Delete(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.activities.Delete(c.Request.Context(), id); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
