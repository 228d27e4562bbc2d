package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/crm-backend/internal/dto"
	"github.com/ignatzorin/crm-backend/internal/http/handlers/common"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// SettingsHandler обслуживает реквизиты компании и конфигурацию полей.
type SettingsHandler struct {
	settings *service.SettingsService
	fields   *service.FieldService
}

// NewSettingsHandler создаёт хэндлер настроек.
func NewSettingsHandler(settings *service.SettingsService, fields *service.FieldService) *SettingsHandler {
	return &SettingsHandler{settings: settings, fields: fields}
}

// Company обрабатывает GET /api/settings/company.
func (h *SettingsHandler) Company(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateCompany обрабатывает PUT /api/settings/company.
func (h *SettingsHandler) UpdateCompany(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	var req dto.SettingsRequest
	if !common.BindJSON(c, &req) {
		return
	}

	settings, err := h.settings.Update(c.Request.Context(), actor, req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UploadLogo обрабатывает POST /api/settings/company/logo (multipart, поле file).
func (h *SettingsHandler) UploadLogo(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	upload, err := openUpload(c, "file", imageMimeTypes)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	defer upload.Close()

	settings, err := h.settings.UploadLogo(c.Request.Context(), actor, upload.name, upload.contentType, upload.file, upload.size)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// Fields обрабатывает GET /api/settings/fields/:entity.
func (h *SettingsHandler) Fields(c *gin.Context) {
	fields, err := h.fields.List(c.Request.Context(), c.Param("entity"))
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, fields)
}

// CreateField обрабатывает POST /api/settings/fields/:entity.
func (h *SettingsHandler) CreateField(c *gin.Context) {
	var req dto.FieldRequest
	if !common.BindJSON(c, &req) {
		return
	}
	field, err := h.fields.Create(c.Request.Context(), c.Param("entity"), req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, field)
}

// UpdateField обрабатывает PUT /api/settings/fields/:entity/:id.
func (h *SettingsHandler) UpdateField(c *gin.Context) {
	var req dto.FieldRequest
	if !common.BindJSON(c, &req) {
		return
	}
	field, err := h.fields.Update(c.Request.Context(), c.Param("entity"), c.Param("id"), req.ToInput())
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, field)
}

// DeleteField обрабатывает DELETE /api/settings/fields/:entity/:id.
func (h *SettingsHandler) DeleteField(c *gin.Context) {
	if err := h.fields.Delete(c.Request.Context(), c.Param("entity"), c.Param("id")); err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReorderFields обрабатывает PUT /api/settings/fields/:entity/reorder.
func (h *SettingsHandler) ReorderFields(c *gin.Context) {
	var req struct {
		Keys []string `json:"keys" binding:"required"`
	}
	if !common.BindJSON(c, &req) {
		return
	}
	fields, err := h.fields.Reorder(c.Request.Context(), c.Param("entity"), req.Keys)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondItems(c, fields)
}
