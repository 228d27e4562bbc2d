package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/fields"
	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

// FieldConfigRepository хранит пользовательские настройки полей.
type FieldConfigRepository interface {
	List(ctx context.Context, entity string) ([]models.FieldConfig, error)
	GetByID(ctx context.Context, entity, id string) (*models.FieldConfig, error)
	Create(ctx context.Context, f *models.FieldConfig) error
	Update(ctx context.Context, f *models.FieldConfig) error
	Delete(ctx context.Context, entity, id string) error
	SetPositions(ctx context.Context, entity string, keys []string) error
}

// FieldConfigProvider отдаёт актуальную конфигурацию полей сущности.
type FieldConfigProvider interface {
	Configs(ctx context.Context, entity string) ([]models.FieldConfig, error)
}

// FieldInput описывает создание или изменение поля.
type FieldInput struct {
	Key      string
	Label    *string
	Type     *string
	Options  []string
	Required *bool
	Visible  *bool
	Position *int
}

// FieldService управляет конфигурацией полей форм.
type FieldService struct {
	repo FieldConfigRepository
}

// NewFieldService создаёт сервис конфигурации полей.
func NewFieldService(repo FieldConfigRepository) *FieldService {
	return &FieldService{repo: repo}
}

func validateEntity(entity string) error {
	if !models.IsValid(models.ValidFieldEntities, entity) {
		return apperror.Validation("неизвестная сущность: %s", entity)
	}
	return nil
}

// List возвращает сохранённые поля, объединённые с полями по умолчанию.
// При недоступности хранилища отдаются только поля по умолчанию.
func (s *FieldService) List(ctx context.Context, entity string) ([]models.FieldConfig, error) {
	if err := validateEntity(entity); err != nil {
		return nil, err
	}
	stored, err := s.repo.List(ctx, entity)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"entity": entity, "error": err}).Warn("field service: используются поля по умолчанию")
		stored = nil
	}
	return fields.Merge(entity, stored), nil
}

// Configs реализует FieldConfigProvider.
func (s *FieldService) Configs(ctx context.Context, entity string) ([]models.FieldConfig, error) {
	return s.List(ctx, entity)
}

// Create добавляет пользовательское поле.
func (s *FieldService) Create(ctx context.Context, entity string, in FieldInput) (*models.FieldConfig, error) {
	if err := validateEntity(entity); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(in.Key)
	if err := validation.ValidateFieldKey(key); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	if fields.IsSystemKey(entity, key) {
		return nil, apperror.Conflict("поле с таким ключом уже существует")
	}

	f := &models.FieldConfig{
		Entity:  entity,
		Key:     key,
		Type:    models.FieldTypeText,
		Visible: true,
	}
	if in.Position == nil {
		merged, err := s.List(ctx, entity)
		if err != nil {
			return nil, err
		}
		f.Position = len(merged)
	}
	if err := applyFieldInput(f, in); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrFieldExists) {
			return nil, apperror.Conflict("поле с таким ключом уже существует")
		}
		return nil, apperror.Internal(err)
	}
	return f, nil
}

// Update изменяет поле. Для системного поля, ещё не сохранённого в хранилище,
// создаётся переопределение; ключ и тип системного поля не меняются.
func (s *FieldService) Update(ctx context.Context, entity, id string, in FieldInput) (*models.FieldConfig, error) {
	current, err := s.find(ctx, entity, id)
	if err != nil {
		return nil, err
	}

	f := *current
	if f.IsSystem {
		in.Type = nil
	}
	if err := applyFieldInput(&f, in); err != nil {
		return nil, err
	}

	if strings.HasPrefix(f.ID, fields.DefaultIDPrefix) {
		if err := s.repo.Create(ctx, &f); err != nil {
			return nil, apperror.Internal(err)
		}
		return &f, nil
	}
	if err := s.repo.Update(ctx, &f); err != nil {
		return nil, repoError(err, apperror.ErrFieldNotFound)
	}
	return &f, nil
}

// Delete удаляет пользовательское поле. Системные поля можно только скрыть.
func (s *FieldService) Delete(ctx context.Context, entity, id string) error {
	f, err := s.find(ctx, entity, id)
	if err != nil {
		return err
	}
	if f.IsSystem {
		return apperror.Conflict("системное поле нельзя удалить, его можно скрыть")
	}
	if err := s.repo.Delete(ctx, entity, id); err != nil {
		return repoError(err, apperror.ErrFieldNotFound)
	}
	return nil
}

// Reorder выставляет порядок полей по списку ключей.
func (s *FieldService) Reorder(ctx context.Context, entity string, keys []string) ([]models.FieldConfig, error) {
	merged, err := s.List(ctx, entity)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, apperror.Validation("список ключей пуст")
	}

	byKey := make(map[string]models.FieldConfig, len(merged))
	for _, f := range merged {
		byKey[f.Key] = f
	}
	order := make([]string, 0, len(merged))
	seen := make(map[string]struct{}, len(merged))
	for _, key := range keys {
		if _, ok := byKey[key]; !ok {
			return nil, apperror.Validation("неизвестное поле: %s", key)
		}
		if _, dup := seen[key]; dup {
			return nil, apperror.Validation("поле %s указано дважды", key)
		}
		seen[key] = struct{}{}
		order = append(order, key)
	}
	// не перечисленные поля идут следом в прежнем порядке
	for _, f := range merged {
		if _, ok := seen[f.Key]; !ok {
			order = append(order, f.Key)
		}
	}

	for i, key := range order {
		f := byKey[key]
		// поля по умолчанию сохраняются, чтобы порядок пережил перезапуск
		if strings.HasPrefix(f.ID, fields.DefaultIDPrefix) {
			f.Position = i
			if err := s.repo.Create(ctx, &f); err != nil && !errors.Is(err, repository.ErrFieldExists) {
				return nil, apperror.Internal(err)
			}
		}
	}

	if err := s.repo.SetPositions(ctx, entity, order); err != nil {
		return nil, apperror.Internal(err)
	}
	return s.List(ctx, entity)
}

func (s *FieldService) find(ctx context.Context, entity, id string) (*models.FieldConfig, error) {
	if !strings.HasPrefix(id, fields.DefaultIDPrefix) {
		if err := validateEntity(entity); err != nil {
			return nil, err
		}
		f, err := s.repo.GetByID(ctx, entity, id)
		if err != nil {
			return nil, repoError(err, apperror.ErrFieldNotFound)
		}
		return f, nil
	}
	// поле по умолчанию существует только в объединённом списке
	merged, err := s.List(ctx, entity)
	if err != nil {
		return nil, err
	}
	for _, f := range merged {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, apperror.ErrFieldNotFound
}

func applyFieldInput(f *models.FieldConfig, in FieldInput) error {
	if in.Label != nil {
		f.Label = strings.TrimSpace(*in.Label)
	}
	if f.Label == "" {
		f.Label = f.Key
	}
	if err := validation.ValidateLength("название поля", f.Label, 1, validation.MaxNameLength); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	if in.Type != nil {
		if !models.IsValid(models.ValidFieldTypes, *in.Type) {
			return apperror.Validation("недопустимый тип поля: %s", *in.Type)
		}
		f.Type = *in.Type
	}
	if in.Options != nil {
		f.Options = cleanOptions(in.Options)
	}
	if f.Type == models.FieldTypeSelect && len(f.Options) == 0 {
		return apperror.Validation("для поля типа select нужны варианты")
	}
	if f.Type != models.FieldTypeSelect && !f.IsSystem {
		f.Options = nil
	}
	if in.Required != nil {
		f.Required = *in.Required
	}
	if in.Visible != nil {
		f.Visible = *in.Visible
	}
	if in.Position != nil {
		if *in.Position < 0 {
			return apperror.Validation("позиция не может быть отрицательной")
		}
		f.Position = *in.Position
	}
	if f.Options == nil {
		f.Options = []string{}
	}
	return nil
}

func cleanOptions(options []string) []string {
	out := make([]string, 0, len(options))
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
