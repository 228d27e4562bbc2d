package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
)

type sentEvent struct {
	userID uuid.UUID
	event  string
	data   interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []sentEvent
}

func (p *recordingPublisher) BroadcastToUser(userID uuid.UUID, event string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sentEvent{userID: userID, event: event, data: data})
	return nil
}

func (p *recordingPublisher) Events() []sentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentEvent(nil), p.events...)
}

type staticCurrency string

func (c staticCurrency) DefaultCurrency(context.Context) string { return string(c) }

func newDealTestService(t *testing.T) (*DealService, *memory.Store, []models.PipelineStage, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore()
	stages, err := NewPipelineService(store.Stages(), store.Deals()).Stages(context.Background())
	require.NoError(t, err)

	events := &recordingPublisher{}
	svc := NewDealService(DealServiceDeps{
		Deals:      store.Deals(),
		Stages:     store.Stages(),
		Contacts:   store.Contacts(),
		Activities: store.Activities(),
		Fields:     NewFieldService(store.Fields()),
		Currency:   staticCurrency("EUR"),
		Events:     events,
	})
	return svc, store, stages, events
}

func TestDealService_CreateDefaultsAndValidation(t *testing.T) {
	svc, store, stages, _ := newDealTestService(t)
	ctx := context.Background()
	actor := Actor{UserID: uuid.New(), Role: models.RoleAgent}

	contact := &models.Contact{FirstName: "Anna", Status: models.ContactStatusLead}
	require.NoError(t, store.Contacts().Create(ctx, contact))

	d, err := svc.Create(ctx, actor, DealInput{Title: " Website ", StageID: stages[0].ID, ContactID: &contact.ID, Value: 1200.456})
	require.NoError(t, err)
	assert.Equal(t, "Website", d.Title)
	assert.Equal(t, "EUR", d.Currency)
	assert.Equal(t, 1200.46, d.Value)
	assert.Equal(t, models.DealStatusOpen, d.Status)
	assert.Nil(t, d.ClosedAt)
	require.NotNil(t, d.OwnerID)
	assert.Equal(t, actor.UserID, *d.OwnerID)

	_, err = svc.Create(ctx, actor, DealInput{Title: "", StageID: stages[0].ID})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Create(ctx, actor, DealInput{Title: "X", StageID: stages[0].ID, Value: -1})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Create(ctx, actor, DealInput{Title: "X", StageID: stages[0].ID, Currency: "EURO"})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Create(ctx, actor, DealInput{Title: "X", StageID: uuid.New()})
	assert.ErrorIs(t, err, apperror.ErrStageNotFound)

	missing := uuid.New()
	_, err = svc.Create(ctx, actor, DealInput{Title: "X", StageID: stages[0].ID, ContactID: &missing})
	assert.ErrorIs(t, err, apperror.ErrContactNotFound)
}

func TestDealService_CreateInWonStageIsClosed(t *testing.T) {
	svc, _, stages, _ := newDealTestService(t)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	d, err := svc.Create(context.Background(), Actor{}, DealInput{Title: "Closed", StageID: stages[4].ID, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusWon, d.Status)
	assert.Equal(t, "USD", d.Currency)
	require.NotNil(t, d.ClosedAt)
	assert.Equal(t, fixed, *d.ClosedAt)
}

func TestDealService_MoveStageLogsNoteAndNotifiesOwner(t *testing.T) {
	svc, store, stages, events := newDealTestService(t)
	ctx := context.Background()
	owner := Actor{UserID: uuid.New(), Role: models.RoleAgent}

	d, err := svc.Create(ctx, owner, DealInput{Title: "Deal", StageID: stages[0].ID})
	require.NoError(t, err)

	moved, err := svc.MoveStage(ctx, owner, d.ID, stages[4].ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusWon, moved.Status)
	assert.NotNil(t, moved.ClosedAt)

	notes, _, err := store.Activities().List(ctx, models.ActivityFilter{DealID: &d.ID})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Этап изменён: Lead → Won", notes[0].Subject)

	sent := events.Events()
	require.Len(t, sent, 1)
	assert.Equal(t, owner.UserID, sent[0].userID)
	assert.Equal(t, "deal.stage_changed", sent[0].event)

	reopened, err := svc.MoveStage(ctx, owner, d.ID, stages[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusOpen, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)

	_, err = svc.MoveStage(ctx, owner, d.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrStageNotFound)
	_, err = svc.MoveStage(ctx, owner, uuid.New(), stages[0].ID)
	assert.ErrorIs(t, err, apperror.ErrDealNotFound)
}

func TestDealService_MoveToSameStageIsNoop(t *testing.T) {
	svc, store, stages, events := newDealTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, Actor{UserID: uuid.New()}, DealInput{Title: "Deal", StageID: stages[0].ID})
	require.NoError(t, err)

	_, err = svc.MoveStage(ctx, Actor{}, d.ID, stages[0].ID)
	require.NoError(t, err)
	assert.Empty(t, events.Events())

	notes, _, err := store.Activities().List(ctx, models.ActivityFilter{DealID: &d.ID})
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDealService_UpdateKeepsOwnerAndValidatesCustomFields(t *testing.T) {
	svc, store, stages, _ := newDealTestService(t)
	ctx := context.Background()
	owner := Actor{UserID: uuid.New()}

	fields := NewFieldService(store.Fields())
	_, err := fields.Create(ctx, models.FieldEntityDeal, FieldInput{Key: "budget_code", Label: ptr("Код бюджета"), Type: ptr(models.FieldTypeNumber)})
	require.NoError(t, err)

	d, err := svc.Create(ctx, owner, DealInput{Title: "Deal", StageID: stages[0].ID})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, d.ID, DealInput{Title: "Deal v2", StageID: stages[1].ID, Value: 10, CustomFields: models.CustomFields{"budget_code": 42}})
	require.NoError(t, err)
	assert.Equal(t, "Deal v2", updated.Title)
	require.NotNil(t, updated.OwnerID)
	assert.Equal(t, owner.UserID, *updated.OwnerID)

	_, err = svc.Update(ctx, d.ID, DealInput{Title: "Deal v3", StageID: stages[1].ID, CustomFields: models.CustomFields{"budget_code": "abc"}})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Update(ctx, uuid.New(), DealInput{Title: "X", StageID: stages[0].ID})
	assert.ErrorIs(t, err, apperror.ErrDealNotFound)
}

func TestDealService_ListAndDelete(t *testing.T) {
	svc, _, stages, _ := newDealTestService(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		_, err := svc.Create(ctx, Actor{}, DealInput{Title: title, StageID: stages[0].ID})
		require.NoError(t, err)
	}
	items, total, err := svc.List(ctx, models.DealFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2)

	_, _, err = svc.List(ctx, models.DealFilter{Status: "frozen"})
	assert.True(t, apperror.IsValidation(err))

	require.NoError(t, svc.Delete(ctx, items[0].ID))
	assert.ErrorIs(t, svc.Delete(ctx, items[0].ID), apperror.ErrDealNotFound)
}
