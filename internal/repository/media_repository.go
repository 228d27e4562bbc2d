package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository/common"
)

// AttachmentRepository работает с таблицей attachments.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository создаёт экземпляр.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create сохраняет запись о файле.
func (r *AttachmentRepository) Create(ctx context.Context, a *models.Attachment) error {
	query := `
		INSERT INTO attachments (user_id, entity_type, entity_id, object_key, file_name, content_type, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		a.UserID, a.EntityType, a.EntityID, a.ObjectKey, a.FileName, a.ContentType, a.Size,
	).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("attachment repository: create %w", err)
	}
	return nil
}

// GetByID возвращает запись о файле.
func (r *AttachmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	return common.GetByID[models.Attachment](ctx, r.db, "attachments", id, ErrAttachmentNotFound)
}

// List возвращает файлы, привязанные к сущности (или все файлы пользователя).
func (r *AttachmentRepository) List(ctx context.Context, entityType string, entityID *uuid.UUID, userID *uuid.UUID) ([]models.Attachment, error) {
	var cond common.Conditions
	if entityType != "" {
		cond.Add("entity_type = ?", entityType)
	}
	if entityID != nil {
		cond.Add("entity_id = ?", *entityID)
	}
	if userID != nil {
		cond.Add("user_id = ?", *userID)
	}

	items := make([]models.Attachment, 0)
	if err := r.db.SelectContext(ctx, &items,
		`SELECT * FROM attachments`+cond.Where()+` ORDER BY created_at DESC`, cond.Args()...); err != nil {
		return nil, fmt.Errorf("attachment repository: list %w", err)
	}
	return items, nil
}

// Delete удаляет запись о файле.
func (r *AttachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return common.DeleteByID(ctx, r.db, "attachments", id, ErrAttachmentNotFound)
}
