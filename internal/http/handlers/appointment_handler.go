package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/crm-backend/internal/dto"
	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// AppointmentHandler обслуживает календарь встреч.
type AppointmentHandler struct {
	appointments *service.AppointmentService
}

// NewAppointmentHandler создаёт хэндлер встреч.
func NewAppointmentHandler(appointments *service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments}
}

// Create обрабатывает POST /api/appointments.
func (h *AppointmentHandler) Create(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req dto.AppointmentRequest
	if !common.BindJSON(c, &req) {
		return
	}

	a, err := h.appointments.Create(c.Request.Context(), actor, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// List обрабатывает GET /api/appointments.
func (h *AppointmentHandler) List(c *gin.Context) {
	f := models.AppointmentFilter{Status: c.Query("status"), Limit: common.ParseIntQuery(c, "limit", 0)}

	var err error
	if f.From, err = common.OptionalTimeQuery(c, "from"); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if f.To, err = common.OptionalTimeQuery(c, "to"); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if f.UserID, err = common.OptionalUUIDQuery(c, "user_id"); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if f.ContactID, err = common.OptionalUUIDQuery(c, "contact_id"); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	items, err := h.appointments.List(c.Request.Context(), f)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, items)
}

// Get обрабатывает GET /api/appointments/:id.
func (h *AppointmentHandler) Get(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	a, err := h.appointments.Get(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Update обрабатывает PUT /api/appointments/:id.
func (h *AppointmentHandler) Update(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.AppointmentRequest
	if !common.BindJSON(c, &req) {
		return
	}

	a, err := h.appointments.Update(c.Request.Context(), id, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// SetStatus обрабатывает PUT /api/appointments/:id/status.
func (h *AppointmentHandler) SetStatus(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.StatusRequest
	if !common.BindJSON(c, &req) {
		return
	}

	a, err := h.appointments.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Delete обрабатывает DELETE /api/appointments/:id.
func (h *AppointmentHandler) Delete(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.appointments.Delete(c.Request.Context(), id); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
