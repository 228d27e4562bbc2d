package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/storage"
)

// AttachmentRepository хранит записи о загруженных файлах.
type AttachmentRepository interface {
	Create(ctx context.Context, a *models.Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error)
	List(ctx context.Context, entityType string, entityID *uuid.UUID, userID *uuid.UUID) ([]models.Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Сущности, к которым можно прикрепить файл.
var attachmentEntities = map[string]struct{}{
	"contact":     {},
	"deal":        {},
	"proposal":    {},
	"activity":    {},
	"appointment": {},
	"campaign":    {},
}

// UploadInput загружаемый файл. ContentType уже определён по сигнатуре.
type UploadInput struct {
	FileName    string
	ContentType string
	Body        io.Reader
	Size        int64
	EntityType  string
	EntityID    *uuid.UUID
}

// MediaService управляет вложениями.
type MediaService struct {
	repo    AttachmentRepository
	objects storage.ObjectStorage
}

// NewMediaService создаёт сервис вложений.
func NewMediaService(repo AttachmentRepository, objects storage.ObjectStorage) *MediaService {
	return &MediaService{repo: repo, objects: objects}
}

// Upload сохраняет файл в хранилище и регистрирует вложение.
func (s *MediaService) Upload(ctx context.Context, actor Actor, in UploadInput) (*models.Attachment, error) {
	if s.objects == nil {
		return nil, apperror.New(apperror.ErrCodeUnavailable, "хранилище файлов не настроено")
	}
	entityType := strings.TrimSpace(in.EntityType)
	if entityType != "" {
		if _, ok := attachmentEntities[entityType]; !ok {
			return nil, apperror.Validation("недопустимый entity_type: %s", entityType)
		}
	}
	if (entityType == "") != (in.EntityID == nil) {
		return nil, apperror.Validation("entity_type и entity_id указываются вместе")
	}

	key := storage.ObjectKey("attachments", in.FileName)
	written, err := s.objects.Put(ctx, key, in.ContentType, in.Body, in.Size)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, apperror.Validation("файл слишком большой")
		}
		return nil, apperror.Internal(err)
	}

	a := &models.Attachment{
		UserID:      actor.UserID,
		EntityType:  trimPtr(&entityType),
		EntityID:    in.EntityID,
		ObjectKey:   key,
		FileName:    in.FileName,
		ContentType: in.ContentType,
		Size:        written,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		s.removeObject(ctx, key)
		return nil, apperror.Internal(err)
	}
	a.URL = s.objects.URL(key)

	logger.Log.WithFields(logrus.Fields{
		"user_id": actor.UserID,
		"key":     key,
		"size":    written,
	}).Info("media service: файл загружен")
	return a, nil
}

// List возвращает вложения сущности. Без фильтра отдаются файлы пользователя.
func (s *MediaService) List(ctx context.Context, actor Actor, entityType string, entityID *uuid.UUID) ([]models.Attachment, error) {
	var owner *uuid.UUID
	if entityType == "" && entityID == nil {
		owner = &actor.UserID
	}
	items, err := s.repo.List(ctx, entityType, entityID, owner)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	for i := range items {
		if s.objects != nil {
			items[i].URL = s.objects.URL(items[i].ObjectKey)
		}
	}
	return items, nil
}

// Delete удаляет вложение. Доступно владельцу файла и администратору.
func (s *MediaService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return repoError(err, apperror.ErrAttachmentNotFound)
	}
	if a.UserID != actor.UserID && !actor.IsAdmin() {
		return apperror.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, apperror.ErrAttachmentNotFound)
	}
	s.removeObject(ctx, a.ObjectKey)
	return nil
}

func (s *MediaService) removeObject(ctx context.Context, key string) {
	if s.objects == nil {
		return
	}
	if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		logger.Log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("media service: объект не удалён")
	}
}
