package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/pkg/money"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

// DealRepository описывает хранилище сделок.
type DealRepository interface {
	Create(ctx context.Context, d *models.Deal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	Update(ctx context.Context, d *models.Deal) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f models.DealFilter) ([]models.Deal, int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	SumByCurrency(ctx context.Context, status string, closedSince *time.Time) (map[string]float64, error)
}

// StageGetter загружает этап воронки.
type StageGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PipelineStage, error)
}

// CurrencyProvider отдаёт валюту компании по умолчанию.
type CurrencyProvider interface {
	DefaultCurrency(ctx context.Context) string
}

// DealInput данные создания и изменения сделки.
type DealInput struct {
	Title             string
	ContactID         *uuid.UUID
	OwnerID           *uuid.UUID
	StageID           uuid.UUID
	Value             float64
	Currency          string
	ExpectedCloseDate *time.Time
	Notes             *string
	CustomFields      models.CustomFields
}

// DealServiceDeps зависимости DealService.
type DealServiceDeps struct {
	Deals      DealRepository
	Stages     StageGetter
	Contacts   ContactGetter
	Activities ActivityCreator
	Fields     FieldConfigProvider
	Currency   CurrencyProvider
	Events     EventPublisher
}

// DealService бизнес-логика сделок.
type DealService struct {
	deps DealServiceDeps
	now  func() time.Time
}

// NewDealService создаёт сервис сделок.
func NewDealService(deps DealServiceDeps) *DealService {
	return &DealService{deps: deps, now: time.Now}
}

// Create создаёт сделку; статус определяется флагами этапа.
func (s *DealService) Create(ctx context.Context, actor Actor, in DealInput) (*models.Deal, error) {
	d := &models.Deal{}
	stage, err := s.apply(ctx, d, in)
	if err != nil {
		return nil, err
	}
	if d.OwnerID == nil && actor.UserID != uuid.Nil {
		owner := actor.UserID
		d.OwnerID = &owner
	}
	s.syncStatus(d, stage)

	if err := s.deps.Deals.Create(ctx, d); err != nil {
		return nil, apperror.Internal(err)
	}
	return d, nil
}

// Get возвращает сделку.
func (s *DealService) Get(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	d, err := s.deps.Deals.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, apperror.ErrDealNotFound)
	}
	return d, nil
}

// List возвращает страницу сделок.
func (s *DealService) List(ctx context.Context, f models.DealFilter) ([]models.Deal, int, error) {
	if f.Status != "" && !models.IsValid(models.ValidDealStatuses, f.Status) {
		return nil, 0, apperror.Validation("недопустимый статус сделки: %s", f.Status)
	}
	f.Limit = normalizeLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := s.deps.Deals.List(ctx, f)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return items, total, nil
}

// Update полностью заменяет данные сделки.
func (s *DealService) Update(ctx context.Context, id uuid.UUID, in DealInput) (*models.Deal, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	owner := d.OwnerID
	stage, err := s.apply(ctx, d, in)
	if err != nil {
		return nil, err
	}
	if d.OwnerID == nil {
		d.OwnerID = owner
	}
	s.syncStatus(d, stage)

	if err := s.deps.Deals.Update(ctx, d); err != nil {
		return nil, repoError(err, apperror.ErrDealNotFound)
	}
	return d, nil
}

// Delete удаляет сделку.
func (s *DealService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.deps.Deals.Delete(ctx, id); err != nil {
		return repoError(err, apperror.ErrDealNotFound)
	}
	return nil
}

// MoveStage переносит сделку на другой этап, пишет заметку в журнал
// и уведомляет владельца.
func (s *DealService) MoveStage(ctx context.Context, actor Actor, id, stageID uuid.UUID) (*models.Deal, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	to, err := s.deps.Stages.GetByID(ctx, stageID)
	if err != nil {
		return nil, repoError(err, apperror.ErrStageNotFound)
	}
	if d.StageID == to.ID {
		return d, nil
	}

	fromName := "?"
	if from, err := s.deps.Stages.GetByID(ctx, d.StageID); err == nil {
		fromName = from.Name
	}

	d.StageID = to.ID
	s.syncStatus(d, to)
	if err := s.deps.Deals.Update(ctx, d); err != nil {
		return nil, repoError(err, apperror.ErrDealNotFound)
	}

	note := &models.Activity{
		Type:      models.ActivityTypeNote,
		Subject:   fmt.Sprintf("Этап изменён: %s → %s", fromName, to.Name),
		ContactID: d.ContactID,
		DealID:    &d.ID,
	}
	if actor.UserID != uuid.Nil {
		userID := actor.UserID
		note.UserID = &userID
	}
	logSystemActivity(ctx, s.deps.Activities, note)

	if d.OwnerID != nil && s.deps.Events != nil {
		payload := map[string]interface{}{
			"deal_id":    d.ID,
			"title":      d.Title,
			"from_stage": fromName,
			"to_stage":   to.Name,
			"status":     d.Status,
		}
		if err := s.deps.Events.BroadcastToUser(*d.OwnerID, "deal.stage_changed", payload); err != nil {
			logger.Log.WithFields(logrus.Fields{"deal_id": d.ID, "error": err}).Warn("deal service: не удалось отправить событие")
		}
	}
	return d, nil
}

// syncStatus выставляет статус и closed_at по флагам этапа.
func (s *DealService) syncStatus(d *models.Deal, stage *models.PipelineStage) {
	status := stage.DealStatus()
	switch {
	case status == models.DealStatusOpen:
		d.ClosedAt = nil
	case d.Status != status || d.ClosedAt == nil:
		now := s.now()
		d.ClosedAt = &now
	}
	d.Status = status
}

func (s *DealService) apply(ctx context.Context, d *models.Deal, in DealInput) (*models.PipelineStage, error) {
	title := strings.TrimSpace(in.Title)
	if err := validation.ValidateRequired("название сделки", title, validation.MaxTitleLength); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	if in.Value < 0 {
		return nil, apperror.Validation("сумма сделки не может быть отрицательной")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" && s.deps.Currency != nil {
		currency = s.deps.Currency.DefaultCurrency(ctx)
	}
	if !money.IsValidCurrency(currency) {
		return nil, apperror.Validation("валюта должна быть кодом ISO-4217")
	}

	notes := trimPtr(in.Notes)
	if notes != nil {
		if err := validation.ValidateLength("заметки", *notes, 0, validation.MaxNotesLength); err != nil {
			return nil, apperror.Validation("%s", err.Error())
		}
	}

	if in.StageID == uuid.Nil {
		return nil, apperror.Validation("stage_id обязателен")
	}
	stage, err := s.deps.Stages.GetByID(ctx, in.StageID)
	if err != nil {
		return nil, repoError(err, apperror.ErrStageNotFound)
	}
	if in.ContactID != nil {
		if _, err := s.deps.Contacts.GetByID(ctx, *in.ContactID); err != nil {
			return nil, repoError(err, apperror.ErrContactNotFound)
		}
	}

	custom := in.CustomFields
	if custom == nil {
		custom = models.CustomFields{}
	}
	if err := validateCustomFields(ctx, s.deps.Fields, models.FieldEntityDeal, custom, d.CustomFields); err != nil {
		return nil, err
	}

	d.Title = title
	d.ContactID = in.ContactID
	if in.OwnerID != nil {
		d.OwnerID = in.OwnerID
	}
	d.StageID = stage.ID
	d.Value = money.Round2(in.Value)
	d.Currency = currency
	d.ExpectedCloseDate = in.ExpectedCloseDate
	d.Notes = notes
	d.CustomFields = custom
	return stage, nil
}
