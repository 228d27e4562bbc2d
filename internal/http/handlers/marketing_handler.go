package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/dto"
	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// MarketingHandler обслуживает списки рассылки и кампании.
type MarketingHandler struct {
	marketing *service.MarketingService
}

// NewMarketingHandler создаёт хэндлер маркетинга.
func NewMarketingHandler(marketing *service.MarketingService) *MarketingHandler {
	return &MarketingHandler{marketing: marketing}
}

type listRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (r listRequest) toInput() service.ListInput {
	return service.ListInput{Name: r.Name, Description: r.Description}
}

// CreateList обрабатывает POST /api/marketing/lists.
func (h *MarketingHandler) CreateList(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req listRequest
	if !common.BindJSON(c, &req) {
		return
	}

	list, err := h.marketing.CreateList(c.Request.Context(), actor, req.toInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, list)
}

// Lists обрабатывает GET /api/marketing/lists.
func (h *MarketingHandler) Lists(c *gin.Context) {
	lists, err := h.marketing.Lists(c.Request.Context())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, lists)
}

// GetList обрабатывает GET /api/marketing/lists/:id.
func (h *MarketingHandler) GetList(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	list, err := h.marketing.GetList(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// UpdateList обрабатывает PUT /api/marketing/lists/:id.
func (h *MarketingHandler) UpdateList(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req listRequest
	if !common.BindJSON(c, &req) {
		return
	}

	list, err := h.marketing.UpdateList(c.Request.Context(), id, req.toInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// DeleteList обрабатывает DELETE /api/marketing/lists/:id.
func (h *MarketingHandler) DeleteList(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.marketing.DeleteList(c.Request.Context(), id); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddMembers обрабатывает POST /api/marketing/lists/:id/members.
func (h *MarketingHandler) AddMembers(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		ContactIDs []uuid.UUID `json:"contact_ids" binding:"required"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	added, list, err := h.marketing.AddMembers(c.Request.Context(), id, req.ContactIDs)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MembersAddedResponse{Added: added, List: list})
}

// RemoveMember обрабатывает DELETE /api/marketing/lists/:id/members/:contactId.
func (h *MarketingHandler) RemoveMember(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	contactID, ok := common.UUIDParam(c, "contactId")
	if !ok {
		return
	}
	if err := h.marketing.RemoveMember(c.Request.Context(), id, contactID); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Members обрабатывает GET /api/marketing/lists/:id/members.
func (h *MarketingHandler) Members(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	members, err := h.marketing.Members(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, members)
}

// CreateCampaign обрабатывает POST /api/marketing/campaigns.
func (h *MarketingHandler) CreateCampaign(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req dto.CampaignRequest
	if !common.BindJSON(c, &req) {
		return
	}

	campaign, err := h.marketing.CreateCampaign(c.Request.Context(), actor, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// Campaigns обрабатывает GET /api/marketing/campaigns.
func (h *MarketingHandler) Campaigns(c *gin.Context) {
	campaigns, err := h.marketing.Campaigns(c.Request.Context())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, campaigns)
}

// GetCampaign обрабатывает GET /api/marketing/campaigns/:id.
func (h *MarketingHandler) GetCampaign(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	campaign, err := h.marketing.GetCampaign(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// UpdateCampaign обрабатывает PUT /api/marketing/campaigns/:id.
func (h *MarketingHandler) UpdateCampaign(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.CampaignRequest
	if !common.BindJSON(c, &req) {
		return
	}

	campaign, err := h.marketing.UpdateCampaign(c.Request.Context(), id, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// DeleteCampaign обрабатывает DELETE /api/marketing/campaigns/:id.
func (h *MarketingHandler) DeleteCampaign(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.marketing.DeleteCampaign(c.Request.Context(), id); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Send обрабатывает POST /api/marketing/campaigns/:id/send.
// Отправка идёт синхронно: ответ содержит итоговые счётчики.
func (h *MarketingHandler) Send(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	campaign, err := h.marketing.Send(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// Schedule обрабатывает POST /api/marketing/campaigns/:id/schedule.
func (h *MarketingHandler) Schedule(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	campaign, err := h.marketing.Schedule(c.Request.Context(), id, req.ScheduledAt)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// Deliveries обрабатывает GET /api/marketing/campaigns/:id/deliveries.
func (h *MarketingHandler) Deliveries(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	deliveries, err := h.marketing.Deliveries(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, deliveries)
}
