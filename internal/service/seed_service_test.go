package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
)

func newSeedTestService(store *memory.Store) *SeedService {
	return NewSeedService(SeedDeps{
		Contacts:     store.Contacts(),
		Stages:       NewPipelineService(store.Stages(), store.Deals()),
		Deals:        store.Deals(),
		Activities:   store.Activities(),
		Appointments: store.Appointments(),
		Marketing:    store.Marketing(),
	}, 42)
}

func TestSeedService_SeedDemo(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	owner := uuid.New()

	res, err := newSeedTestService(store).SeedDemo(ctx, &owner, 10)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 10, res.Contacts)
	assert.Equal(t, 5, res.Deals)
	assert.Equal(t, 10, res.Activities)
	assert.Equal(t, 5, res.Appointments)

	contacts, total, err := store.Contacts().List(ctx, models.ContactFilter{})
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	for _, c := range contacts {
		require.NotNil(t, c.Email)
		assert.NotContains(t, *c.Email, "а", "email должен быть в латинице")
		assert.Equal(t, &owner, c.OwnerID)
	}

	deals, _, err := store.Deals().List(ctx, models.DealFilter{})
	require.NoError(t, err)
	for _, d := range deals {
		assert.Equal(t, d.Status != models.DealStatusOpen, d.ClosedAt != nil)
	}

	lists, err := store.Marketing().ListLists(ctx)
	require.NoError(t, err)
	assert.Len(t, lists, 1)
}

func TestSeedService_SkipsWhenDataExists(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Contacts().Create(ctx, &models.Contact{FirstName: "X", Status: models.ContactStatusLead}))

	res, err := newSeedTestService(store).SeedDemo(ctx, nil, 10)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	_, total, err := store.Contacts().List(ctx, models.ContactFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestToLatin(t *testing.T) {
	assert.Equal(t, "Fyodorova", toLatin("Фёдорова"))
	assert.Equal(t, "Ilya", toLatin("Илья"))
}

func TestSeedService_SeededContactsAreSearchable(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	index := newMemoryContactIndex(true)
	contacts := newContactServiceWithStore(store, index)

	seeder := newSeedTestService(store)
	seeder.deps.Index = contacts
	_, err := seeder.SeedDemo(ctx, nil, 5)
	require.NoError(t, err)
	require.Len(t, index.docs, 5)

	all, _, err := store.Contacts().List(ctx, models.ContactFilter{})
	require.NoError(t, err)
	found, err := contacts.Search(ctx, all[0].LastName, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, found)
	ids := make([]uuid.UUID, 0, len(found))
	for _, c := range found {
		ids = append(ids, c.ID)
	}
	assert.Contains(t, ids, all[0].ID)
}
