package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/crm-backend/internal/dto"
	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// ProposalHandler обслуживает коммерческие предложения.
type ProposalHandler struct {
	proposals *service.ProposalService
}

// NewProposalHandler создаёт хэндлер предложений.
func NewProposalHandler(proposals *service.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals}
}

func (h *ProposalHandler) response(p *models.Proposal) dto.ProposalResponse {
	return dto.ProposalResponse{Proposal: p, PublicURL: h.proposals.PublicLink(p)}
}

// Create обрабатывает POST /api/proposals.
func (h *ProposalHandler) Create(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req dto.ProposalRequest
	if !common.BindJSON(c, &req) {
		return
	}

	p, err := h.proposals.Create(c.Request.Context(), actor, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.response(p))
}

// List обрабатывает GET /api/proposals.
func (h *ProposalHandler) List(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	f := models.ProposalFilter{Status: c.Query("status"), Limit: limit, Offset: offset}

	var err error
	if f.ContactID, err = common.OptionalUUIDQuery(c, "contact_id"); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if f.DealID, err = common.OptionalUUIDQuery(c, "deal_id"); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	items, total, err := h.proposals.List(c.Request.Context(), f)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondList(c, items, total, limit, offset)
}

// Get обрабатывает GET /api/proposals/:id.
func (h *ProposalHandler) Get(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	p, err := h.proposals.Get(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(p))
}

// Update обрабатывает PUT /api/proposals/:id.
func (h *ProposalHandler) Update(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.ProposalRequest
	if !common.BindJSON(c, &req) {
		return
	}

	p, err := h.proposals.Update(c.Request.Context(), id, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(p))
}

// Delete обрабатывает DELETE /api/proposals/:id.
func (h *ProposalHandler) Delete(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.proposals.Delete(c.Request.Context(), id); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetStatus обрабатывает PUT /api/proposals/:id/status.
func (h *ProposalHandler) SetStatus(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.StatusRequest
	if !common.BindJSON(c, &req) {
		return
	}

	p, err := h.proposals.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(p))
}

// Send обрабатывает POST /api/proposals/:id/send.
func (h *ProposalHandler) Send(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}

	p, err := h.proposals.Send(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(p))
}

// PDF обрабатывает GET /api/proposals/:id/pdf.
func (h *ProposalHandler) PDF(c *gin.Context) {
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}

	data, p, err := h.proposals.PDF(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.pdf"`, p.Number))
	c.Data(http.StatusOK, "application/pdf", data)
}

// PublicView обрабатывает GET /api/public/proposals/:token.
func (h *ProposalHandler) PublicView(c *gin.Context) {
	view, err := h.proposals.PublicView(c.Request.Context(), c.Param("token"))
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PublicSign обрабатывает POST /api/public/proposals/:token/sign.
func (h *ProposalHandler) PublicSign(c *gin.Context) {
	var req struct {
		SignerName    string `json:"signer_name" binding:"required"`
		SignerEmail   string `json:"signer_email" binding:"required"`
		SignatureData string `json:"signature_data" binding:"required"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	p, err := h.proposals.Sign(c.Request.Context(), c.Param("token"), service.SignInput{
		SignerName:    req.SignerName,
		SignerEmail:   req.SignerEmail,
		SignatureData: req.SignatureData,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PublicReject обрабатывает POST /api/public/proposals/:token/reject.
func (h *ProposalHandler) PublicReject(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// Тело необязательно
	if c.Request.ContentLength > 0 && !common.BindJSON(c, &req) {
		return
	}

	p, err := h.proposals.Reject(c.Request.Context(), c.Param("token"), req.Reason)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
