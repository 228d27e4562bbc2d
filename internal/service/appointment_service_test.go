package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
)

func newAppointmentTestService() (*AppointmentService, *memory.Store, *recordingPublisher) {
	store := memory.NewStore()
	events := &recordingPublisher{}
	return NewAppointmentService(store.Appointments(), store.Contacts(), store.Deals(), events), store, events
}

func TestAppointmentService_CreateDefaultsAndNotifies(t *testing.T) {
	svc, store, events := newAppointmentTestService()
	ctx := context.Background()
	actor := Actor{UserID: uuid.New()}

	contact := &models.Contact{FirstName: "Anna", Status: models.ContactStatusLead}
	require.NoError(t, store.Contacts().Create(ctx, contact))

	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	a, err := svc.Create(ctx, actor, AppointmentInput{Title: " Демо ", StartsAt: start, ContactID: &contact.ID, MeetingURL: ptr("https://meet.example.com/x")})
	require.NoError(t, err)
	assert.Equal(t, "Демо", a.Title)
	assert.Equal(t, start.Add(30*time.Minute), a.EndsAt)
	assert.Equal(t, models.AppointmentStatusScheduled, a.Status)
	require.NotNil(t, a.UserID)
	assert.Equal(t, actor.UserID, *a.UserID)

	sent := events.Events()
	require.Len(t, sent, 1)
	assert.Equal(t, "appointment.created", sent[0].event)
	assert.Equal(t, actor.UserID, sent[0].userID)
}

func TestAppointmentService_CreateAssignsOtherUser(t *testing.T) {
	svc, _, events := newAppointmentTestService()
	assignee := uuid.New()

	_, err := svc.Create(context.Background(), Actor{UserID: uuid.New()}, AppointmentInput{Title: "Call", StartsAt: time.Now(), UserID: &assignee})
	require.NoError(t, err)

	sent := events.Events()
	require.Len(t, sent, 1)
	assert.Equal(t, assignee, sent[0].userID)
}

func TestAppointmentService_Validation(t *testing.T) {
	svc, _, _ := newAppointmentTestService()
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)
	missing := uuid.New()

	cases := []AppointmentInput{
		{Title: "", StartsAt: start},
		{Title: "X"},
		{Title: "X", StartsAt: start, EndsAt: &before},
		{Title: "X", StartsAt: start, EndsAt: &start},
		{Title: "X", StartsAt: start, MeetingURL: ptr("ftp://meet")},
	}
	for _, in := range cases {
		_, err := svc.Create(ctx, Actor{}, in)
		assert.True(t, apperror.IsValidation(err), "%+v", in)
	}

	_, err := svc.Create(ctx, Actor{}, AppointmentInput{Title: "X", StartsAt: start, ContactID: &missing})
	assert.ErrorIs(t, err, apperror.ErrContactNotFound)
	_, err = svc.Create(ctx, Actor{}, AppointmentInput{Title: "X", StartsAt: start, DealID: &missing})
	assert.ErrorIs(t, err, apperror.ErrDealNotFound)
}

func TestAppointmentService_ListUpdateStatusDelete(t *testing.T) {
	svc, _, _ := newAppointmentTestService()
	ctx := context.Background()
	user := Actor{UserID: uuid.New()}
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		a, err := svc.Create(ctx, user, AppointmentInput{Title: "Встреча", StartsAt: base.Add(time.Duration(i) * 24 * time.Hour)})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	from, to := base.Add(12*time.Hour), base.Add(72*time.Hour)
	items, err := svc.List(ctx, models.AppointmentFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = svc.List(ctx, models.AppointmentFilter{From: &to, To: &from})
	assert.True(t, apperror.IsValidation(err))

	end := base.Add(2 * time.Hour)
	updated, err := svc.Update(ctx, ids[0], AppointmentInput{Title: "Перенесено", StartsAt: base, EndsAt: &end})
	require.NoError(t, err)
	assert.Equal(t, end, updated.EndsAt)
	require.NotNil(t, updated.UserID)
	assert.Equal(t, user.UserID, *updated.UserID)

	done, err := svc.SetStatus(ctx, ids[0], models.AppointmentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusCompleted, done.Status)
	_, err = svc.SetStatus(ctx, ids[0], "postponed")
	assert.True(t, apperror.IsValidation(err))

	require.NoError(t, svc.Delete(ctx, ids[0]))
	_, err = svc.Get(ctx, ids[0])
	assert.ErrorIs(t, err, apperror.ErrAppointmentNotFound)
}
