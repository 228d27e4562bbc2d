package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// AIHandler обслуживает AI-ассистента и генерацию черновиков.
type AIHandler struct {
	ai *service.AIService
}

// NewAIHandler создаёт хэндлер AI.
func NewAIHandler(ai *service.AIService) *AIHandler {
	return &AIHandler{ai: ai}
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat обрабатывает POST /api/ai/chat.
func (h *AIHandler) Chat(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req chatRequest
	if !common.BindJSON(c, &req) {
		return
	}

	reply, err := h.ai.Chat(c.Request.Context(), actor, req.Message)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// ChatStream обрабатывает POST /api/ai/chat/stream.
// Ответ приходит как Server-Sent Events: data: <фрагмент>, в конце event: done.
func (h *AIHandler) ChatStream(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req chatRequest
	if !common.BindJSON(c, &req) {
		return
	}

	// Заголовки SSE отправляются только с первым фрагментом, чтобы ошибки
	// валидации ушли обычным JSON ответом.
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream; charset=utf-8")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	reply, err := h.ai.ChatStream(c.Request.Context(), actor, req.Message, func(chunk string) error {
		start()
		if _, err := writeSSEData(c.Writer, chunk); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		if !started {
			common.RespondAppError(c, err)
			return
		}
		logger.Log.WithFields(logrus.Fields{"user_id": actor.UserID, "error": err}).Warn("ai handler: поток прерван")
		_, _ = writeSSEEvent(c.Writer, "error", "поток прерван")
		c.Writer.Flush()
		return
	}

	start()
	_, _ = writeSSEEvent(c.Writer, "done", reply.Source)
	c.Writer.Flush()
}

// History обрабатывает GET /api/ai/chat/history.
func (h *AIHandler) History(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	history, err := h.ai.History(c.Request.Context(), userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, history)
}

// ClearHistory обрабатывает DELETE /api/ai/chat/history.
func (h *AIHandler) ClearHistory(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	if err := h.ai.ClearHistory(c.Request.Context(), userID); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DraftProposal обрабатывает POST /api/ai/proposals/draft.
func (h *AIHandler) DraftProposal(c *gin.Context) {
	var req struct {
		DealID    *uuid.UUID `json:"deal_id"`
		ContactID *uuid.UUID `json:"contact_id"`
		Notes     string     `json:"notes"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	draft, err := h.ai.DraftProposal(c.Request.Context(), service.ProposalDraftInput{
		DealID:    req.DealID,
		ContactID: req.ContactID,
		Notes:     req.Notes,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// DraftCampaign обрабатывает POST /api/ai/campaigns/draft.
func (h *AIHandler) DraftCampaign(c *gin.Context) {
	var req struct {
		Goal     string `json:"goal"`
		Channel  string `json:"channel"`
		Audience string `json:"audience"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	draft, err := h.ai.DraftCampaign(c.Request.Context(), service.CampaignDraftInput{
		Goal:     req.Goal,
		Channel:  req.Channel,
		Audience: req.Audience,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}
