package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ignatzorin/crm-backend/internal/fields"
	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

// ContactRepository описывает хранилище контактов.
type ContactRepository interface {
	Create(ctx context.Context, c *models.Contact) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contact, error)
	Update(ctx context.Context, c *models.Contact) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f models.ContactFilter) ([]models.Contact, int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// ContactIndex полнотекстовый индекс контактов.
type ContactIndex interface {
	IndexContact(ctx context.Context, c *models.Contact) error
	IndexContacts(ctx context.Context, contacts []models.Contact) error
	RemoveContact(ctx context.Context, id uuid.UUID) error
	SearchContacts(ctx context.Context, query string, limit int) ([]uuid.UUID, error)
	Healthy(ctx context.Context) bool
}

// DealLister отдаёт сделки по фильтру.
type DealLister interface {
	List(ctx context.Context, f models.DealFilter) ([]models.Deal, int, error)
}

// ActivityLister отдаёт активности по фильтру.
type ActivityLister interface {
	List(ctx context.Context, f models.ActivityFilter) ([]models.Activity, int, error)
}

// AppointmentLister отдаёт встречи по фильтру.
type AppointmentLister interface {
	List(ctx context.Context, f models.AppointmentFilter) ([]models.Appointment, error)
}

// ProposalLister отдаёт предложения по фильтру.
type ProposalLister interface {
	List(ctx context.Context, f models.ProposalFilter) ([]models.Proposal, int, error)
}

// ContactServiceDeps зависимости ContactService.
type ContactServiceDeps struct {
	Contacts     ContactRepository
	Deals        DealLister
	Activities   ActivityLister
	Appointments AppointmentLister
	Proposals    ProposalLister
	Fields       FieldConfigProvider
	// Index может отсутствовать: тогда поиск идёт через SQL.
	Index ContactIndex
}

// ContactInput данные создания и изменения контакта.
type ContactInput struct {
	FirstName    string
	LastName     string
	Email        *string
	Phone        *string
	Company      *string
	Position     *string
	Status       string
	Source       *string
	Tags         []string
	Notes        *string
	OwnerID      *uuid.UUID
	CustomFields models.CustomFields
}

// ContactService бизнес-логика контактов.
type ContactService struct {
	deps ContactServiceDeps
}

// NewContactService создаёт сервис контактов.
func NewContactService(deps ContactServiceDeps) *ContactService {
	return &ContactService{deps: deps}
}

// Create создаёт контакт. Владелец по умолчанию - текущий пользователь.
func (s *ContactService) Create(ctx context.Context, actor Actor, in ContactInput) (*models.Contact, error) {
	c := &models.Contact{}
	if err := s.apply(ctx, c, in); err != nil {
		return nil, err
	}
	if c.OwnerID == nil && actor.UserID != uuid.Nil {
		owner := actor.UserID
		c.OwnerID = &owner
	}

	if err := s.deps.Contacts.Create(ctx, c); err != nil {
		return nil, apperror.Internal(err)
	}
	s.index(ctx, c)
	return c, nil
}

// Get возвращает контакт.
func (s *ContactService) Get(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	c, err := s.deps.Contacts.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, apperror.ErrContactNotFound)
	}
	return c, nil
}

// Update полностью заменяет данные контакта.
func (s *ContactService) Update(ctx context.Context, id uuid.UUID, in ContactInput) (*models.Contact, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	owner := c.OwnerID
	if err := s.apply(ctx, c, in); err != nil {
		return nil, err
	}
	if c.OwnerID == nil {
		c.OwnerID = owner
	}

	if err := s.deps.Contacts.Update(ctx, c); err != nil {
		return nil, repoError(err, apperror.ErrContactNotFound)
	}
	s.index(ctx, c)
	return c, nil
}

// Delete удаляет контакт; связанные сделки и активности остаются без ссылки.
func (s *ContactService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.deps.Contacts.Delete(ctx, id); err != nil {
		return repoError(err, apperror.ErrContactNotFound)
	}
	if s.deps.Index != nil {
		if err := s.deps.Index.RemoveContact(ctx, id); err != nil {
			logger.Log.WithFields(logrus.Fields{"contact_id": id, "error": err}).Warn("contact service: не удалось удалить контакт из индекса")
		}
	}
	return nil
}

// List возвращает страницу контактов и общее количество.
func (s *ContactService) List(ctx context.Context, f models.ContactFilter) ([]models.Contact, int, error) {
	if f.Status != "" && !models.IsValid(models.ValidContactStatuses, f.Status) {
		return nil, 0, apperror.Validation("недопустимый статус: %s", f.Status)
	}
	f.Query = strings.TrimSpace(f.Query)
	f.Tag = strings.ToLower(strings.TrimSpace(f.Tag))
	f.Limit = normalizeLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}

	items, total, err := s.deps.Contacts.List(ctx, f)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return items, total, nil
}

// Search ищет контакты через поисковый движок, если он доступен,
// иначе через фильтр списка.
func (s *ContactService) Search(ctx context.Context, query string, limit int) ([]models.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.Validation("параметр q обязателен")
	}
	limit = normalizeLimit(limit)

	if s.deps.Index != nil && s.deps.Index.Healthy(ctx) {
		ids, err := s.deps.Index.SearchContacts(ctx, query, limit)
		if err == nil {
			return s.byIDs(ctx, ids)
		}
		logger.Log.WithFields(logrus.Fields{"query": query, "error": err}).Warn("contact service: поиск через индекс не удался, используется SQL")
	}

	items, _, err := s.deps.Contacts.List(ctx, models.ContactFilter{Query: query, Limit: limit})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return items, nil
}

// byIDs загружает контакты в порядке релевантности из индекса.
func (s *ContactService) byIDs(ctx context.Context, ids []uuid.UUID) ([]models.Contact, error) {
	if len(ids) == 0 {
		return []models.Contact{}, nil
	}
	items, _, err := s.deps.Contacts.List(ctx, models.ContactFilter{IDs: ids, Limit: len(ids)})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	byID := make(map[uuid.UUID]models.Contact, len(items))
	for _, c := range items {
		byID[c.ID] = c
	}
	out := make([]models.Contact, 0, len(items))
	for _, id := range ids {
		// индекс может отставать от базы
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Timeline собирает сделки, активности, встречи и предложения контакта.
func (s *ContactService) Timeline(ctx context.Context, id uuid.UUID) (*models.ContactTimeline, error) {
	contact, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tl := &models.ContactTimeline{Contact: contact}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deals, _, err := s.deps.Deals.List(gctx, models.DealFilter{ContactID: &id})
		tl.Deals = deals
		return err
	})
	g.Go(func() error {
		activities, _, err := s.deps.Activities.List(gctx, models.ActivityFilter{ContactID: &id})
		tl.Activities = activities
		return err
	})
	g.Go(func() error {
		appointments, err := s.deps.Appointments.List(gctx, models.AppointmentFilter{ContactID: &id})
		tl.Appointments = appointments
		return err
	})
	g.Go(func() error {
		proposals, _, err := s.deps.Proposals.List(gctx, models.ProposalFilter{ContactID: &id})
		tl.Proposals = proposals
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperror.Internal(err)
	}
	return tl, nil
}

func (s *ContactService) apply(ctx context.Context, c *models.Contact, in ContactInput) error {
	firstName := strings.TrimSpace(in.FirstName)
	if err := validation.ValidateRequired("имя", firstName, validation.MaxNameLength); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	lastName := strings.TrimSpace(in.LastName)
	if err := validation.ValidateLength("фамилия", lastName, 0, validation.MaxNameLength); err != nil {
		return apperror.Validation("%s", err.Error())
	}

	email := trimPtr(in.Email)
	if email != nil {
		lower := strings.ToLower(*email)
		if err := validation.ValidateEmail(lower); err != nil {
			return apperror.Validation("%s", err.Error())
		}
		email = &lower
	}
	phone := trimPtr(in.Phone)
	if phone != nil {
		if err := validation.ValidatePhone(*phone); err != nil {
			return apperror.Validation("%s", err.Error())
		}
	}

	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = models.ContactStatusLead
	}
	if !models.IsValid(models.ValidContactStatuses, status) {
		return apperror.Validation("недопустимый статус: %s", status)
	}

	company, position, source, notes := trimPtr(in.Company), trimPtr(in.Position), trimPtr(in.Source), trimPtr(in.Notes)
	for name, v := range map[string]*string{"компания": company, "должность": position, "источник": source} {
		if v != nil {
			if err := validation.ValidateLength(name, *v, 0, validation.MaxTitleLength); err != nil {
				return apperror.Validation("%s", err.Error())
			}
		}
	}
	if notes != nil {
		if err := validation.ValidateLength("заметки", *notes, 0, validation.MaxNotesLength); err != nil {
			return apperror.Validation("%s", err.Error())
		}
	}

	tags := normalizeTags(in.Tags)
	if err := validation.ValidateTags(tags); err != nil {
		return apperror.Validation("%s", err.Error())
	}

	custom := in.CustomFields
	if custom == nil {
		custom = models.CustomFields{}
	}
	if err := validateCustomFields(ctx, s.deps.Fields, models.FieldEntityContact, custom, c.CustomFields); err != nil {
		return err
	}

	c.FirstName, c.LastName = firstName, lastName
	c.Email, c.Phone = email, phone
	c.Company, c.Position, c.Source, c.Notes = company, position, source, notes
	c.Status = status
	c.Tags = tags
	c.CustomFields = custom
	if in.OwnerID != nil {
		c.OwnerID = in.OwnerID
	}
	return nil
}

const reindexBatchSize = 200

// ReindexContacts заново загружает в индекс все контакты из хранилища.
// Без индекса или при недоступном индексе ничего не делает.
func (s *ContactService) ReindexContacts(ctx context.Context) (int, error) {
	if s.deps.Index == nil || !s.deps.Index.Healthy(ctx) {
		return 0, nil
	}
	indexed := 0
	for offset := 0; ; offset += reindexBatchSize {
		batch, total, err := s.deps.Contacts.List(ctx, models.ContactFilter{Limit: reindexBatchSize, Offset: offset})
		if err != nil {
			return indexed, fmt.Errorf("contact service: reindex list: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		if err := s.deps.Index.IndexContacts(ctx, batch); err != nil {
			return indexed, fmt.Errorf("contact service: reindex: %w", err)
		}
		indexed += len(batch)
		if offset+len(batch) >= total {
			break
		}
	}
	logger.Log.WithField("contacts", indexed).Info("contact service: индекс контактов перестроен")
	return indexed, nil
}

func (s *ContactService) index(ctx context.Context, c *models.Contact) {
	if s.deps.Index == nil {
		return
	}
	if err := s.deps.Index.IndexContact(ctx, c); err != nil {
		logger.Log.WithFields(logrus.Fields{"contact_id": c.ID, "error": err}).Warn("contact service: не удалось проиндексировать контакт")
	}
}

// validateCustomFields проверяет пользовательские поля по конфигурации сущности.
// stored значения, уже сохранённые у сущности: ключи удалённых полей из них отбрасываются.
func validateCustomFields(ctx context.Context, provider FieldConfigProvider, entity string, values, stored models.CustomFields) error {
	if provider == nil {
		return nil
	}
	configs, err := provider.Configs(ctx, entity)
	if err != nil {
		return err
	}
	if dropped := fields.Prune(configs, values, stored); len(dropped) > 0 {
		logger.Log.WithFields(logrus.Fields{"entity": entity, "keys": dropped}).Debug("service: отброшены значения удалённых полей")
	}
	if err := fields.ValidateValues(configs, values); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
