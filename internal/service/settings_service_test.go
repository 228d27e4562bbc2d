package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
	"github.com/ignatzorin/crm-backend/internal/storage"
)

type mockSettingsRepo struct {
	mock.Mock
}

func (m *mockSettingsRepo) Get(ctx context.Context) (*models.CompanySettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CompanySettings), args.Error(1)
}

func (m *mockSettingsRepo) Upsert(ctx context.Context, s *models.CompanySettings) error {
	return m.Called(ctx, s).Error(0)
}

var managerActor = Actor{UserID: uuid.New(), Role: models.RoleManager}

func TestSettingsService_GetDefaults(t *testing.T) {
	repo := new(mockSettingsRepo)
	repo.On("Get", mock.Anything).Return(nil, errors.New("db down"))
	svc := NewSettingsService(repo, nil, "EUR")

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultCompanyName, settings.CompanyName)
	assert.Equal(t, "EUR", settings.Currency)
	assert.Equal(t, "UTC", settings.Timezone)
	assert.Zero(t, settings.TaxRate)
	assert.Equal(t, "EUR", svc.DefaultCurrency(context.Background()))
}

func TestSettingsService_Update(t *testing.T) {
	store := memory.NewStore()
	svc := NewSettingsService(store.Settings(), nil, "USD")
	ctx := context.Background()

	_, err := svc.Update(ctx, Actor{UserID: uuid.New(), Role: models.RoleAgent}, SettingsInput{CompanyName: "Acme"})
	assert.True(t, apperror.IsForbidden(err))

	updated, err := svc.Update(ctx, managerActor, SettingsInput{
		CompanyName: " Acme ",
		Email:       ptr("sales@acme.io"),
		Currency:    "brl",
		TaxRate:     12.5,
		Timezone:    "Europe/Moscow",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", updated.CompanyName)
	assert.Equal(t, "BRL", updated.Currency)

	stored, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BRL", stored.Currency)
	assert.Equal(t, 12.5, stored.TaxRate)
	assert.Equal(t, "BRL", svc.DefaultCurrency(ctx))

	bad := []SettingsInput{
		{CompanyName: ""},
		{CompanyName: "A", Currency: "EURO"},
		{CompanyName: "A", TaxRate: 101},
		{CompanyName: "A", TaxRate: -1},
		{CompanyName: "A", Timezone: "Mars/Base"},
		{CompanyName: "A", Website: ptr("not a url")},
	}
	for _, in := range bad {
		_, err := svc.Update(ctx, managerActor, in)
		assert.True(t, apperror.IsValidation(err), "ожидалась ошибка валидации для %+v", in)
	}
}

func TestSettingsService_UploadLogo(t *testing.T) {
	store := memory.NewStore()
	objects, err := storage.NewLocalStorage(t.TempDir(), "/media", 1)
	require.NoError(t, err)
	svc := NewSettingsService(store.Settings(), objects, "USD")
	ctx := context.Background()

	settings, err := svc.UploadLogo(ctx, managerActor, "logo.png", "image/png", strings.NewReader("png-bytes"), 9)
	require.NoError(t, err)
	require.NotNil(t, settings.LogoURL)
	assert.True(t, strings.HasPrefix(*settings.LogoURL, "/media/logos/"))
	assert.Equal(t, DefaultCompanyName, settings.CompanyName)

	// последующее изменение реквизитов сохраняет логотип
	updated, err := svc.Update(ctx, managerActor, SettingsInput{CompanyName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, settings.LogoURL, updated.LogoURL)

	_, err = svc.UploadLogo(ctx, Actor{Role: models.RoleAgent}, "logo.png", "image/png", strings.NewReader("x"), 1)
	assert.True(t, apperror.IsForbidden(err))

	_, err = NewSettingsService(store.Settings(), nil, "USD").UploadLogo(ctx, managerActor, "logo.png", "image/png", strings.NewReader("x"), 1)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, 503, appErr.HTTPStatus)
}
