package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
)

type mockFieldRepo struct {
	mock.Mock
}

func (m *mockFieldRepo) List(ctx context.Context, entity string) ([]models.FieldConfig, error) {
	args := m.Called(ctx, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FieldConfig), args.Error(1)
}

func (m *mockFieldRepo) GetByID(ctx context.Context, entity, id string) (*models.FieldConfig, error) {
	args := m.Called(ctx, entity, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FieldConfig), args.Error(1)
}

func (m *mockFieldRepo) Create(ctx context.Context, f *models.FieldConfig) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockFieldRepo) Update(ctx context.Context, f *models.FieldConfig) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockFieldRepo) Delete(ctx context.Context, entity, id string) error {
	return m.Called(ctx, entity, id).Error(0)
}

func (m *mockFieldRepo) SetPositions(ctx context.Context, entity string, keys []string) error {
	return m.Called(ctx, entity, keys).Error(0)
}

func ptr[T any](v T) *T { return &v }

func findField(list []models.FieldConfig, key string) *models.FieldConfig {
	for i := range list {
		if list[i].Key == key {
			return &list[i]
		}
	}
	return nil
}

func TestFieldService_ListFallsBackToDefaults(t *testing.T) {
	repo := new(mockFieldRepo)
	repo.On("List", mock.Anything, "contact").Return(nil, errors.New("connection refused"))
	svc := NewFieldService(repo)

	list, err := svc.List(context.Background(), "contact")
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, "first_name", list[0].Key)
	for _, f := range list {
		assert.True(t, f.IsSystem)
	}

	_, err = svc.List(context.Background(), "invoice")
	assert.True(t, apperror.IsValidation(err))
}

func TestFieldService_CreateCustomField(t *testing.T) {
	svc := NewFieldService(memory.NewStore().Fields())
	ctx := context.Background()

	f, err := svc.Create(ctx, "contact", FieldInput{
		Key:     "industry",
		Label:   ptr("Отрасль"),
		Type:    ptr(models.FieldTypeSelect),
		Options: []string{"IT", " Retail ", "IT", ""},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, []string{"IT", "Retail"}, f.Options)
	assert.True(t, f.Visible)
	assert.False(t, f.IsSystem)

	list, err := svc.List(ctx, "contact")
	require.NoError(t, err)
	assert.Equal(t, "industry", list[len(list)-1].Key)

	_, err = svc.Create(ctx, "contact", FieldInput{Key: "industry"})
	assert.True(t, apperror.IsConflict(err))

	_, err = svc.Create(ctx, "contact", FieldInput{Key: "email"})
	assert.True(t, apperror.IsConflict(err))

	_, err = svc.Create(ctx, "contact", FieldInput{Key: "Bad Key"})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Create(ctx, "contact", FieldInput{Key: "size", Type: ptr(models.FieldTypeSelect)})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Create(ctx, "contact", FieldInput{Key: "size", Type: ptr("color")})
	assert.True(t, apperror.IsValidation(err))
}

func TestFieldService_UpdateSystemFieldCreatesOverride(t *testing.T) {
	svc := NewFieldService(memory.NewStore().Fields())
	ctx := context.Background()

	f, err := svc.Update(ctx, "contact", "default:contact:phone", FieldInput{
		Label:   ptr("Мобильный"),
		Type:    ptr(models.FieldTypeNumber),
		Visible: ptr(false),
	})
	require.NoError(t, err)
	assert.NotEqual(t, "default:contact:phone", f.ID)
	assert.Equal(t, models.FieldTypePhone, f.Type, "тип системного поля не меняется")

	list, err := svc.List(ctx, "contact")
	require.NoError(t, err)
	phone := findField(list, "phone")
	require.NotNil(t, phone)
	assert.Equal(t, "Мобильный", phone.Label)
	assert.False(t, phone.Visible)
	assert.True(t, phone.IsSystem)

	// повторное изменение обновляет сохранённую запись
	f, err = svc.Update(ctx, "contact", phone.ID, FieldInput{Visible: ptr(true)})
	require.NoError(t, err)
	assert.True(t, f.Visible)
	assert.Equal(t, "Мобильный", f.Label)

	_, err = svc.Update(ctx, "contact", "missing", FieldInput{})
	assert.True(t, apperror.IsNotFound(err))
}

func TestFieldService_DeleteRules(t *testing.T) {
	svc := NewFieldService(memory.NewStore().Fields())
	ctx := context.Background()

	err := svc.Delete(ctx, "contact", "default:contact:email")
	assert.True(t, apperror.IsConflict(err))

	f, err := svc.Create(ctx, "deal", FieldInput{Key: "budget_code"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "deal", f.ID))

	list, err := svc.List(ctx, "deal")
	require.NoError(t, err)
	assert.Nil(t, findField(list, "budget_code"))
}

func TestFieldService_Reorder(t *testing.T) {
	svc := NewFieldService(memory.NewStore().Fields())
	ctx := context.Background()

	_, err := svc.Create(ctx, "deal", FieldInput{Key: "region"})
	require.NoError(t, err)

	list, err := svc.Reorder(ctx, "deal", []string{"region", "title", "value"})
	require.NoError(t, err)
	assert.Equal(t, "region", list[0].Key)
	assert.Equal(t, "title", list[1].Key)
	assert.Equal(t, "value", list[2].Key)

	_, err = svc.Reorder(ctx, "deal", []string{"unknown"})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Reorder(ctx, "deal", []string{"title", "title"})
	assert.True(t, apperror.IsValidation(err))
}

func TestFieldService_StoredFieldLookedUpByID(t *testing.T) {
	repo := new(mockFieldRepo)
	stored := &models.FieldConfig{ID: "7d9c", Entity: "contact", Key: "tier", Label: "Уровень", Type: models.FieldTypeText}
	repo.On("GetByID", mock.Anything, "contact", "7d9c").Return(stored, nil)
	repo.On("GetByID", mock.Anything, "contact", "gone").Return(nil, repository.ErrFieldNotFound)
	repo.On("Delete", mock.Anything, "contact", "7d9c").Return(nil)
	svc := NewFieldService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "contact", "7d9c"))
	assert.True(t, apperror.IsNotFound(svc.Delete(ctx, "contact", "gone")))
	assert.True(t, apperror.IsValidation(svc.Delete(ctx, "invoice", "7d9c")))

	repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}
