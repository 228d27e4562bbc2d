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
)

type mockContactIndex struct {
	mock.Mock
}

func (m *mockContactIndex) IndexContact(ctx context.Context, c *models.Contact) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockContactIndex) IndexContacts(ctx context.Context, contacts []models.Contact) error {
	return m.Called(ctx, contacts).Error(0)
}

func (m *mockContactIndex) RemoveContact(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockContactIndex) SearchContacts(ctx context.Context, query string, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *mockContactIndex) Healthy(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func newContactServiceWithStore(store *memory.Store, index ContactIndex) *ContactService {
	return NewContactService(ContactServiceDeps{
		Contacts:     store.Contacts(),
		Deals:        store.Deals(),
		Activities:   store.Activities(),
		Appointments: store.Appointments(),
		Proposals:    store.Proposals(),
		Fields:       NewFieldService(store.Fields()),
		Index:        index,
	})
}

func TestContactService_CreateDefaultsAndValidation(t *testing.T) {
	store := memory.NewStore()
	svc := newContactServiceWithStore(store, nil)
	ctx := context.Background()
	actor := Actor{UserID: uuid.New(), Role: models.RoleAgent}

	c, err := svc.Create(ctx, actor, ContactInput{
		FirstName: "  Анна ",
		LastName:  "Иванова",
		Email:     ptr(" Anna@Example.com "),
		Company:   ptr(""),
		Tags:      []string{"VIP", "vip", " new "},
	})
	require.NoError(t, err)
	assert.Equal(t, "Анна", c.FirstName)
	assert.Equal(t, models.ContactStatusLead, c.Status)
	require.NotNil(t, c.Email)
	assert.Equal(t, "anna@example.com", *c.Email)
	assert.Nil(t, c.Company)
	assert.Equal(t, []string{"vip", "new"}, c.Tags)
	require.NotNil(t, c.OwnerID)
	assert.Equal(t, actor.UserID, *c.OwnerID)

	cases := []ContactInput{
		{FirstName: ""},
		{FirstName: "A", Email: ptr("not-an-email")},
		{FirstName: "A", Phone: ptr("abc")},
		{FirstName: "A", Status: "archived"},
		{FirstName: "A", CustomFields: models.CustomFields{"unknown": "x"}},
	}
	for _, in := range cases {
		_, err := svc.Create(ctx, actor, in)
		assert.True(t, apperror.IsValidation(err), "ожидалась ошибка валидации для %+v", in)
	}
}

func TestContactService_CustomFieldsFollowConfiguration(t *testing.T) {
	store := memory.NewStore()
	fieldsSvc := NewFieldService(store.Fields())
	svc := newContactServiceWithStore(store, nil)
	ctx := context.Background()

	_, err := fieldsSvc.Create(ctx, "contact", FieldInput{
		Key: "segment", Type: ptr(models.FieldTypeSelect), Options: []string{"smb", "enterprise"}, Required: ptr(true),
	})
	require.NoError(t, err)
	_, err = fieldsSvc.Create(ctx, "contact", FieldInput{Key: "employees", Type: ptr(models.FieldTypeNumber)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, Actor{}, ContactInput{FirstName: "A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "обязательно")

	_, err = svc.Create(ctx, Actor{}, ContactInput{FirstName: "A", CustomFields: models.CustomFields{"segment": "startup"}})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Create(ctx, Actor{}, ContactInput{FirstName: "A", CustomFields: models.CustomFields{"segment": "smb", "employees": "many"}})
	assert.True(t, apperror.IsValidation(err))

	c, err := svc.Create(ctx, Actor{}, ContactInput{FirstName: "A", CustomFields: models.CustomFields{"segment": "smb", "employees": 42.0}})
	require.NoError(t, err)
	assert.Equal(t, "smb", c.CustomFields["segment"])
}

func TestContactService_UpdateAfterCustomFieldDeleted(t *testing.T) {
	store := memory.NewStore()
	fieldsSvc := NewFieldService(store.Fields())
	svc := newContactServiceWithStore(store, nil)
	ctx := context.Background()

	field, err := fieldsSvc.Create(ctx, "contact", FieldInput{Key: "budget", Type: ptr(models.FieldTypeNumber)})
	require.NoError(t, err)
	c, err := svc.Create(ctx, Actor{}, ContactInput{FirstName: "A", CustomFields: models.CustomFields{"budget": 10.0}})
	require.NoError(t, err)

	require.NoError(t, fieldsSvc.Delete(ctx, "contact", field.ID))

	updated, err := svc.Update(ctx, c.ID, ContactInput{FirstName: "B", CustomFields: models.CustomFields{"budget": 10.0}})
	require.NoError(t, err, "значение удалённого поля не мешает сохранению")
	assert.Equal(t, "B", updated.FirstName)
	assert.NotContains(t, updated.CustomFields, "budget")

	_, err = svc.Update(ctx, c.ID, ContactInput{FirstName: "B", CustomFields: models.CustomFields{"other": "x"}})
	assert.True(t, apperror.IsValidation(err), "новые неизвестные ключи по-прежнему отклоняются")
}

func TestContactService_UpdateKeepsOwner(t *testing.T) {
	store := memory.NewStore()
	svc := newContactServiceWithStore(store, nil)
	ctx := context.Background()
	owner := uuid.New()

	c, err := svc.Create(ctx, Actor{UserID: owner}, ContactInput{FirstName: "Олег"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, c.ID, ContactInput{FirstName: "Олег", LastName: "Петров", Status: models.ContactStatusCustomer})
	require.NoError(t, err)
	assert.Equal(t, "Петров", updated.LastName)
	assert.Equal(t, models.ContactStatusCustomer, updated.Status)
	require.NotNil(t, updated.OwnerID)
	assert.Equal(t, owner, *updated.OwnerID)

	_, err = svc.Update(ctx, uuid.New(), ContactInput{FirstName: "X"})
	assert.True(t, apperror.IsNotFound(err))
}

func TestContactService_ListValidatesAndPaginates(t *testing.T) {
	store := memory.NewStore()
	svc := newContactServiceWithStore(store, nil)
	ctx := context.Background()
	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		_, err := svc.Create(ctx, Actor{}, ContactInput{FirstName: name, Tags: []string{"Partner"}})
		require.NoError(t, err)
	}

	items, total, err := svc.List(ctx, models.ContactFilter{Tag: "PARTNER", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2)

	_, _, err = svc.List(ctx, models.ContactFilter{Status: "bogus"})
	assert.True(t, apperror.IsValidation(err))
}

func TestContactService_SearchUsesIndexWhenHealthy(t *testing.T) {
	store := memory.NewStore()
	index := new(mockContactIndex)
	index.On("IndexContact", mock.Anything, mock.Anything).Return(nil)
	svc := newContactServiceWithStore(store, index)
	ctx := context.Background()

	a, err := svc.Create(ctx, Actor{}, ContactInput{FirstName: "Alice"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, Actor{}, ContactInput{FirstName: "Bob"})
	require.NoError(t, err)

	index.On("Healthy", mock.Anything).Return(true).Once()
	index.On("SearchContacts", mock.Anything, "al", 20).Return([]uuid.UUID{b.ID, uuid.New(), a.ID}, nil).Once()

	found, err := svc.Search(ctx, "al", 0)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, b.ID, found[0].ID, "порядок релевантности сохраняется")
	assert.Equal(t, a.ID, found[1].ID)
	index.AssertNumberOfCalls(t, "IndexContact", 2)
}

func TestContactService_SearchFallsBackToSQL(t *testing.T) {
	store := memory.NewStore()
	index := new(mockContactIndex)
	index.On("IndexContact", mock.Anything, mock.Anything).Return(errors.New("meili down"))
	svc := newContactServiceWithStore(store, index)
	ctx := context.Background()

	_, err := svc.Create(ctx, Actor{}, ContactInput{FirstName: "Alice", Company: ptr("Acme")})
	require.NoError(t, err, "ошибка индексации не прерывает создание")
	_, err = svc.Create(ctx, Actor{}, ContactInput{FirstName: "Bob"})
	require.NoError(t, err)

	index.On("Healthy", mock.Anything).Return(false).Once()
	found, err := svc.Search(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Alice", found[0].FirstName)
	index.AssertNotCalled(t, "SearchContacts", mock.Anything, mock.Anything, mock.Anything)

	index.On("Healthy", mock.Anything).Return(true).Once()
	index.On("SearchContacts", mock.Anything, "bob", 10).Return(nil, errors.New("timeout")).Once()
	found, err = svc.Search(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = svc.Search(ctx, "  ", 10)
	assert.True(t, apperror.IsValidation(err))
}

func TestContactService_DeleteAndTimeline(t *testing.T) {
	store := memory.NewStore()
	index := new(mockContactIndex)
	index.On("IndexContact", mock.Anything, mock.Anything).Return(nil)
	svc := newContactServiceWithStore(store, index)
	ctx := context.Background()

	c, err := svc.Create(ctx, Actor{}, ContactInput{FirstName: "Timeline"})
	require.NoError(t, err)

	stage := &models.PipelineStage{Name: "Lead", Probability: 10}
	require.NoError(t, store.Stages().Create(ctx, stage))
	require.NoError(t, store.Deals().Create(ctx, &models.Deal{Title: "Deal", ContactID: &c.ID, StageID: stage.ID, Currency: "USD", Status: models.DealStatusOpen}))
	require.NoError(t, store.Activities().Create(ctx, &models.Activity{Type: models.ActivityTypeCall, Subject: "Call", ContactID: &c.ID}))

	tl, err := svc.Timeline(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, tl.Contact.ID)
	assert.Len(t, tl.Deals, 1)
	assert.Len(t, tl.Activities, 1)
	assert.Empty(t, tl.Appointments)
	assert.Empty(t, tl.Proposals)

	index.On("RemoveContact", mock.Anything, c.ID).Return(nil).Once()
	require.NoError(t, svc.Delete(ctx, c.ID))
	index.AssertExpectations(t)

	_, err = svc.Timeline(ctx, c.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.True(t, apperror.IsNotFound(svc.Delete(ctx, c.ID)))
}

// memoryContactIndex индекс в памяти: ищет по подстроке имени и фамилии.
type memoryContactIndex struct {
	healthy bool
	docs    map[uuid.UUID]models.Contact
}

func newMemoryContactIndex(healthy bool) *memoryContactIndex {
	return &memoryContactIndex{healthy: healthy, docs: map[uuid.UUID]models.Contact{}}
}

func (m *memoryContactIndex) IndexContact(_ context.Context, c *models.Contact) error {
	if !m.healthy {
		return errors.New("meili down")
	}
	m.docs[c.ID] = *c
	return nil
}

func (m *memoryContactIndex) IndexContacts(ctx context.Context, contacts []models.Contact) error {
	for i := range contacts {
		if err := m.IndexContact(ctx, &contacts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryContactIndex) RemoveContact(_ context.Context, id uuid.UUID) error {
	delete(m.docs, id)
	return nil
}

func (m *memoryContactIndex) SearchContacts(_ context.Context, query string, _ int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, c := range m.docs {
		if strings.Contains(strings.ToLower(c.FirstName+" "+c.LastName), strings.ToLower(query)) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memoryContactIndex) Healthy(context.Context) bool { return m.healthy }

func TestContactService_ReindexCatchesUpAfterOutage(t *testing.T) {
	store := memory.NewStore()
	index := newMemoryContactIndex(false)
	svc := newContactServiceWithStore(store, index)
	ctx := context.Background()

	for _, name := range []string{"Alice", "Alina", "Bob"} {
		_, err := svc.Create(ctx, Actor{}, ContactInput{FirstName: name})
		require.NoError(t, err)
	}
	n, err := svc.ReindexContacts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "недоступный индекс не перестраивается")
	assert.Empty(t, index.docs)

	index.healthy = true
	n, err = svc.ReindexContacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	found, err := svc.Search(ctx, "ali", 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestContactService_ReindexWithoutIndex(t *testing.T) {
	n, err := newContactServiceWithStore(memory.NewStore(), nil).ReindexContacts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
