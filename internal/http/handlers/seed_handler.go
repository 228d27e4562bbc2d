package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// SeedHandler заполняет пустую CRM демонстрационными данными.
type SeedHandler struct {
	seed *service.SeedService
}

// NewSeedHandler создаёт seed handler.
func NewSeedHandler(seed *service.SeedService) *SeedHandler {
	return &SeedHandler{seed: seed}
}

// Seed обрабатывает POST /api/admin/seed?contacts=20.
// Данные принадлежат вызывающему администратору.
func (h *SeedHandler) Seed(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	contacts := common.ParseIntQuery(c, "contacts", 20)
	if contacts < 1 || contacts > 500 {
		common.RespondBadRequest(c, "contacts должен быть от 1 до 500")
		return
	}

	result, err := h.seed.SeedDemo(c.Request.Context(), &actor.UserID, contacts)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	if result.Skipped {
		c.JSON(http.StatusOK, gin.H{"message": "данные уже есть, генерация пропущена", "result": result})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "демо-данные созданы", "result": result})
}
