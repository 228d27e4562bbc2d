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

// DefaultAppointmentDuration длительность встречи, если конец не указан.
const DefaultAppointmentDuration = 30 * time.Minute

// AppointmentRepository описывает хранилище встреч.
type AppointmentRepository interface {
	Create(ctx context.Context, a *models.Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	Update(ctx context.Context, a *models.Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f models.AppointmentFilter) ([]models.Appointment, error)
}

// AppointmentInput данные встречи.
type AppointmentInput struct {
	Title       string
	Description *string
	ContactID   *uuid.UUID
	DealID      *uuid.UUID
	UserID      *uuid.UUID
	StartsAt    time.Time
	EndsAt      *time.Time
	Location    *string
	MeetingURL  *string
}

// AppointmentService управляет календарём встреч.
type AppointmentService struct {
	repo     AppointmentRepository
	contacts ContactGetter
	deals    DealGetter
	events   EventPublisher
}

// NewAppointmentService создаёт сервис встреч.
func NewAppointmentService(repo AppointmentRepository, contacts ContactGetter, deals DealGetter, events EventPublisher) *AppointmentService {
	return &AppointmentService{repo: repo, contacts: contacts, deals: deals, events: events}
}

// Create создаёт встречу и уведомляет назначенного сотрудника.
func (s *AppointmentService) Create(ctx context.Context, actor Actor, in AppointmentInput) (*models.Appointment, error) {
	a := &models.Appointment{Status: models.AppointmentStatusScheduled}
	if err := s.apply(ctx, a, in); err != nil {
		return nil, err
	}
	if a.UserID == nil && actor.UserID != uuid.Nil {
		userID := actor.UserID
		a.UserID = &userID
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, apperror.Internal(err)
	}

	if a.UserID != nil && s.events != nil {
		payload := map[string]interface{}{
			"appointment_id": a.ID,
			"title":          a.Title,
			"starts_at":      a.StartsAt,
			"contact_id":     a.ContactID,
		}
		if err := s.events.BroadcastToUser(*a.UserID, "appointment.created", payload); err != nil {
			logger.Log.WithFields(logrus.Fields{"appointment_id": a.ID, "error": err}).Warn("appointment service: не удалось отправить событие")
		}
	}
	return a, nil
}

// Get возвращает встречу.
func (s *AppointmentService) Get(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, apperror.ErrAppointmentNotFound)
	}
	return a, nil
}

// List возвращает встречи по фильтру, отсортированные по началу.
func (s *AppointmentService) List(ctx context.Context, f models.AppointmentFilter) ([]models.Appointment, error) {
	if f.Status != "" && !models.IsValid(models.ValidAppointmentStatuses, f.Status) {
		return nil, apperror.Validation("недопустимый статус встречи: %s", f.Status)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, apperror.Validation("to должен быть позже from")
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 500
	}
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return items, nil
}

// Update заменяет данные встречи, статус сохраняется.
func (s *AppointmentService) Update(ctx context.Context, id uuid.UUID, in AppointmentInput) (*models.Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	userID := a.UserID
	if err := s.apply(ctx, a, in); err != nil {
		return nil, err
	}
	if a.UserID == nil {
		a.UserID = userID
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, repoError(err, apperror.ErrAppointmentNotFound)
	}
	return a, nil
}

// SetStatus меняет статус встречи.
func (s *AppointmentService) SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Appointment, error) {
	status = strings.TrimSpace(status)
	if !models.IsValid(models.ValidAppointmentStatuses, status) {
		return nil, apperror.Validation("недопустимый статус встречи: %s", status)
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Status = status
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, repoError(err, apperror.ErrAppointmentNotFound)
	}
	return a, nil
}

// Delete удаляет встречу.
func (s *AppointmentService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, apperror.ErrAppointmentNotFound)
	}
	return nil
}

func (s *AppointmentService) apply(ctx context.Context, a *models.Appointment, in AppointmentInput) error {
	title := strings.TrimSpace(in.Title)
	if err := validation.ValidateRequired("название встречи", title, validation.MaxTitleLength); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	if in.StartsAt.IsZero() {
		return apperror.Validation("starts_at обязателен")
	}
	endsAt := in.StartsAt.Add(DefaultAppointmentDuration)
	if in.EndsAt != nil {
		endsAt = *in.EndsAt
	}
	if !endsAt.After(in.StartsAt) {
		return apperror.Validation("ends_at должен быть позже starts_at")
	}

	meetingURL := trimPtr(in.MeetingURL)
	if meetingURL != nil {
		if err := validation.ValidateURL("ссылка на встречу", *meetingURL); err != nil {
			return apperror.Validation("%s", err.Error())
		}
	}
	location := trimPtr(in.Location)
	if location != nil {
		if err := validation.ValidateLength("место", *location, 0, validation.MaxTitleLength); err != nil {
			return apperror.Validation("%s", err.Error())
		}
	}
	description := trimPtr(in.Description)
	if description != nil {
		if err := validation.ValidateLength("описание", *description, 0, validation.MaxNotesLength); err != nil {
			return apperror.Validation("%s", err.Error())
		}
	}

	if in.ContactID != nil {
		if _, err := s.contacts.GetByID(ctx, *in.ContactID); err != nil {
			return repoError(err, apperror.ErrContactNotFound)
		}
	}
	if in.DealID != nil {
		if _, err := s.deals.GetByID(ctx, *in.DealID); err != nil {
			return repoError(err, apperror.ErrDealNotFound)
		}
	}

	a.Title = title
	a.Description = description
	a.ContactID = in.ContactID
	a.DealID = in.DealID
	if in.UserID != nil {
		a.UserID = in.UserID
	}
	a.StartsAt = in.StartsAt
	a.EndsAt = endsAt
	a.Location = location
	a.MeetingURL = meetingURL
	return nil
}
