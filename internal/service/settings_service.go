package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	// база часовых поясов нужна для проверки timezone в контейнерах без tzdata
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/pkg/money"
	"github.com/ignatzorin/crm-backend/internal/repository"
	"github.com/ignatzorin/crm-backend/internal/storage"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

// DefaultCompanyName название компании, пока настройки не сохранены.
const DefaultCompanyName = "My Company"

// SettingsRepository хранит реквизиты компании.
type SettingsRepository interface {
	Get(ctx context.Context) (*models.CompanySettings, error)
	Upsert(ctx context.Context, s *models.CompanySettings) error
}

// SettingsProvider отдаёт текущие настройки компании.
type SettingsProvider interface {
	Get(ctx context.Context) (*models.CompanySettings, error)
}

// SettingsInput данные изменения реквизитов.
type SettingsInput struct {
	CompanyName string
	Email       *string
	Phone       *string
	Address     *string
	Website     *string
	Currency    string
	TaxRate     float64
	Timezone    string
}

// SettingsService управляет реквизитами компании.
type SettingsService struct {
	repo            SettingsRepository
	storage         storage.ObjectStorage
	defaultCurrency string
}

// NewSettingsService создаёт сервис настроек.
func NewSettingsService(repo SettingsRepository, objects storage.ObjectStorage, defaultCurrency string) *SettingsService {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &SettingsService{repo: repo, storage: objects, defaultCurrency: defaultCurrency}
}

// Defaults возвращает настройки по умолчанию.
func (s *SettingsService) Defaults() *models.CompanySettings {
	return &models.CompanySettings{
		CompanyName: DefaultCompanyName,
		Currency:    s.defaultCurrency,
		TaxRate:     0,
		Timezone:    "UTC",
	}
}

// Get возвращает сохранённые настройки или значения по умолчанию,
// если настроек нет или хранилище недоступно.
func (s *SettingsService) Get(ctx context.Context) (*models.CompanySettings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		if !repository.IsNotFound(err) {
			logger.Log.WithField("error", err).Warn("settings service: используются настройки по умолчанию")
		}
		return s.Defaults(), nil
	}
	return settings, nil
}

// DefaultCurrency возвращает валюту компании.
func (s *SettingsService) DefaultCurrency(ctx context.Context) string {
	settings, _ := s.Get(ctx)
	if settings == nil || settings.Currency == "" {
		return s.defaultCurrency
	}
	return settings.Currency
}

// Update сохраняет реквизиты. Доступно администратору и менеджеру.
func (s *SettingsService) Update(ctx context.Context, actor Actor, in SettingsInput) (*models.CompanySettings, error) {
	if !actor.CanManage() {
		return nil, apperror.ErrForbidden
	}
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.CompanyName)
	if err := validation.ValidateRequired("название компании", name, validation.MaxTitleLength); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	email := trimPtr(in.Email)
	if email != nil {
		if err := validation.ValidateEmail(*email); err != nil {
			return nil, apperror.Validation("%s", err.Error())
		}
	}
	phone := trimPtr(in.Phone)
	if phone != nil {
		if err := validation.ValidatePhone(*phone); err != nil {
			return nil, apperror.Validation("%s", err.Error())
		}
	}
	website := trimPtr(in.Website)
	if website != nil {
		if err := validation.ValidateURL("сайт", *website); err != nil {
			return nil, apperror.Validation("%s", err.Error())
		}
	}
	address := trimPtr(in.Address)
	if address != nil {
		if err := validation.ValidateLength("адрес", *address, 0, validation.MaxTitleLength*2); err != nil {
			return nil, apperror.Validation("%s", err.Error())
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = current.Currency
	}
	if !money.IsValidCurrency(currency) {
		return nil, apperror.Validation("валюта должна быть кодом ISO-4217")
	}
	if in.TaxRate < 0 || in.TaxRate > 100 {
		return nil, apperror.Validation("налог должен быть от 0 до 100")
	}
	timezone := strings.TrimSpace(in.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, apperror.Validation("неизвестный часовой пояс: %s", timezone)
	}

	updated := &models.CompanySettings{
		CompanyName: name,
		Email:       email,
		Phone:       phone,
		Address:     address,
		Website:     website,
		LogoURL:     current.LogoURL,
		Currency:    currency,
		TaxRate:     money.Round2(in.TaxRate),
		Timezone:    timezone,
	}
	if err := s.repo.Upsert(ctx, updated); err != nil {
		return nil, apperror.Internal(err)
	}
	return updated, nil
}

// UploadLogo сохраняет логотип в хранилище и обновляет logo_url.
// Тип содержимого уже проверен по сигнатуре файла.
func (s *SettingsService) UploadLogo(ctx context.Context, actor Actor, fileName, contentType string, r io.Reader, size int64) (*models.CompanySettings, error) {
	if !actor.CanManage() {
		return nil, apperror.ErrForbidden
	}
	if s.storage == nil {
		return nil, apperror.New(apperror.ErrCodeUnavailable, "хранилище файлов не настроено")
	}

	key := storage.ObjectKey("logos", fileName)
	if _, err := s.storage.Put(ctx, key, contentType, r, size); err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, apperror.Validation("файл слишком большой")
		}
		return nil, apperror.Internal(err)
	}

	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	url := s.storage.URL(key)
	settings.LogoURL = &url
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, apperror.Internal(err)
	}

	logger.Log.WithFields(logrus.Fields{"user_id": actor.UserID, "key": key}).Info("settings service: логотип обновлён")
	return settings, nil
}
