package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/crm-backend/internal/dto"
	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// ContactHandler обслуживает контакты и их таймлайн.
type ContactHandler struct {
	contacts *service.ContactService
}

// NewContactHandler создаёт хэндлер контактов.
func NewContactHandler(contacts *service.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// Create обрабатывает POST /api/contacts.
func (h *ContactHandler) Create(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req dto.ContactRequest
	if !common.BindJSON(c, &req) {
		return
	}

	contact, err := h.contacts.Create(c.Request.Context(), actor, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

// List обрабатывает GET /api/contacts.
func (h *ContactHandler) List(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	ownerID, err := common.OptionalUUIDQuery(c, "owner_id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	items, total, err := h.contacts.List(c.Request.Context(), models.ContactFilter{
		Query:   c.Query("q"),
		Status:  c.Query("status"),
		Tag:     c.Query("tag"),
		OwnerID: ownerID,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondList(c, items, total, limit, offset)
}

// Search обрабатывает GET /api/contacts/search?q=.
func (h *ContactHandler) Search(c *gin.Context) {
	items, err := h.contacts.Search(c.Request.Context(), c.Query("q"), common.ParseIntQuery(c, "limit", 20))
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, items)
}

// Get обрабатывает GET /api/contacts/:id.
func (h *ContactHandler) Get(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	contact, err := h.contacts.Get(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// Update обрабатывает PUT /api/contacts/:id.
func (h *ContactHandler) Update(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.ContactRequest
	if !common.BindJSON(c, &req) {
		return
	}

	contact, err := h.contacts.Update(c.Request.Context(), id, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// Delete обрабатывает DELETE /api/contacts/:id.
func (h *ContactHandler) Delete(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.contacts.Delete(c.Request.Context(), id); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Timeline обрабатывает GET /api/contacts/:id/timeline.
func (h *ContactHandler) Timeline(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	timeline, err := h.contacts.Timeline(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, timeline)
}
