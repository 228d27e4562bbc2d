package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

// ActivityRepository описывает хранилище журнала активностей.
type ActivityRepository interface {
	Create(ctx context.Context, a *models.Activity) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error)
	List(ctx context.Context, f models.ActivityFilter) ([]models.Activity, int, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountDue(ctx context.Context, now, until time.Time) (int, int, error)
}

// ContactGetter загружает контакт по идентификатору.
type ContactGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contact, error)
}

// DealGetter загружает сделку по идентификатору.
type DealGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
}

// ActivityCreator записывает активность в журнал.
type ActivityCreator interface {
	Create(ctx context.Context, a *models.Activity) error
}

// ActivityInput данные новой активности.
type ActivityInput struct {
	Type        string
	Subject     string
	Description *string
	ContactID   *uuid.UUID
	DealID      *uuid.UUID
	DueAt       *time.Time
}

// ActivityService ведёт журнал звонков, писем, встреч и задач.
type ActivityService struct {
	repo     ActivityRepository
	contacts ContactGetter
	deals    DealGetter
	now      func() time.Time
}

// NewActivityService создаёт сервис активностей.
func NewActivityService(repo ActivityRepository, contacts ContactGetter, deals DealGetter) *ActivityService {
	return &ActivityService{repo: repo, contacts: contacts, deals: deals, now: time.Now}
}

// Create записывает активность. Нужен хотя бы один из contact_id или deal_id,
// и указанные сущности должны существовать.
func (s *ActivityService) Create(ctx context.Context, actor Actor, in ActivityInput) (*models.Activity, error) {
	if !models.IsValid(models.ValidActivityTypes, in.Type) {
		return nil, apperror.Validation("недопустимый тип активности: %s", in.Type)
	}
	subject := strings.TrimSpace(in.Subject)
	if err := validation.ValidateRequired("тема", subject, validation.MaxTitleLength); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	description := trimPtr(in.Description)
	if description != nil {
		if err := validation.ValidateLength("описание", *description, 0, validation.MaxNotesLength); err != nil {
			return nil, apperror.Validation("%s", err.Error())
		}
	}
	if in.ContactID == nil && in.DealID == nil {
		return nil, apperror.Validation("нужно указать contact_id или deal_id")
	}
	if in.ContactID != nil {
		if _, err := s.contacts.GetByID(ctx, *in.ContactID); err != nil {
			return nil, repoError(err, apperror.ErrContactNotFound)
		}
	}
	if in.DealID != nil {
		if _, err := s.deals.GetByID(ctx, *in.DealID); err != nil {
			return nil, repoError(err, apperror.ErrDealNotFound)
		}
	}

	a := &models.Activity{
		Type:        in.Type,
		Subject:     subject,
		Description: description,
		ContactID:   in.ContactID,
		DealID:      in.DealID,
		DueAt:       in.DueAt,
	}
	if actor.UserID != uuid.Nil {
		userID := actor.UserID
		a.UserID = &userID
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, apperror.Internal(err)
	}
	return a, nil
}

// List возвращает страницу журнала.
func (s *ActivityService) List(ctx context.Context, f models.ActivityFilter) ([]models.Activity, int, error) {
	if f.Type != "" && !models.IsValid(models.ValidActivityTypes, f.Type) {
		return nil, 0, apperror.Validation("недопустимый тип активности: %s", f.Type)
	}
	f.Limit = normalizeLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return items, total, nil
}

// Complete отмечает активность выполненной.
func (s *ActivityService) Complete(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	if err := s.repo.Complete(ctx, id, s.now()); err != nil {
		return nil, repoError(err, apperror.ErrActivityNotFound)
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, apperror.ErrActivityNotFound)
	}
	return a, nil
}

// Delete удаляет активность.
func (s *ActivityService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, apperror.ErrActivityNotFound)
	}
	return nil
}

// logSystemActivity пишет служебную активность; ошибка только логируется.
func logSystemActivity(ctx context.Context, repo ActivityCreator, a *models.Activity) {
	if repo == nil {
		return
	}
	if err := repo.Create(ctx, a); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"type":    a.Type,
			"subject": a.Subject,
			"error":   err,
		}).Warn("не удалось записать активность")
	}
}
