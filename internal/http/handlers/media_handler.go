package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// MediaHandler обслуживает загрузку вложений.
type MediaHandler struct {
	media *service.MediaService
}

// NewMediaHandler создаёт хэндлер вложений.
func NewMediaHandler(media *service.MediaService) *MediaHandler {
	return &MediaHandler{media: media}
}

// Upload обрабатывает POST /api/media (multipart: file, entity_type, entity_id).
func (h *MediaHandler) Upload(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	var entityID *uuid.UUID
	if raw := c.PostForm("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.RespondBadRequest(c, "entity_id должен быть валидным UUID")
			return
		}
		entityID = &id
	}

	upload, err := openUpload(c, "file", attachmentMimeTypes)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	defer upload.Close()

	attachment, err := h.media.Upload(c.Request.Context(), actor, service.UploadInput{
		FileName:    upload.name,
		ContentType: upload.contentType,
		Body:        upload.file,
		Size:        upload.size,
		EntityType:  c.PostForm("entity_type"),
		EntityID:    entityID,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

// List обрабатывает GET /api/media?entity_type=&entity_id=.
func (h *MediaHandler) List(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	entityID, err := common.OptionalUUIDQuery(c, "entity_id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	items, err := h.media.List(c.Request.Context(), actor, c.Query("entity_type"), entityID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, items)
}

// Delete обрабатывает DELETE /api/media/:id.
func (h *MediaHandler) Delete(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.media.Delete(c.Request.Context(), actor, id); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
