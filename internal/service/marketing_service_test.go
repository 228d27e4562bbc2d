package service

import (
	"context"
	"errors"
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

type capturingWhatsApp struct {
	mu    sync.Mutex
	sent  map[string]string
	failb bool
}

func (w *capturingWhatsApp) SendWhatsApp(_ context.Context, phone, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failb {
		return errors.New("provider down")
	}
	if w.sent == nil {
		w.sent = map[string]string{}
	}
	w.sent[phone] = text
	return nil
}

type marketingFixture struct {
	svc      *MarketingService
	store    *memory.Store
	email    *capturingEmailSender
	whatsapp *capturingWhatsApp
	now      time.Time
}

func newMarketingFixture() *marketingFixture {
	store := memory.NewStore()
	f := &marketingFixture{
		store:    store,
		email:    &capturingEmailSender{},
		whatsapp: &capturingWhatsApp{},
		now:      time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewMarketingService(store.Marketing(), f.email, f.whatsapp)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *marketingFixture) contact(t *testing.T, first string, email, phone *string) *models.Contact {
	t.Helper()
	company := "Acme"
	c := &models.Contact{FirstName: first, LastName: "Doe", Email: email, Phone: phone, Company: &company, Status: models.ContactStatusCustomer}
	require.NoError(t, f.store.Contacts().Create(context.Background(), c))
	return c
}

func (f *marketingFixture) listWith(t *testing.T, contacts ...*models.Contact) *models.MarketingList {
	t.Helper()
	ctx := context.Background()
	l, err := f.svc.CreateList(ctx, Actor{UserID: uuid.New()}, ListInput{Name: "Клиенты"})
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	if len(ids) > 0 {
		_, _, err = f.svc.AddMembers(ctx, l.ID, ids)
		require.NoError(t, err)
	}
	return l
}

func TestRenderPlaceholders(t *testing.T) {
	email := "anna@example.com"
	c := &models.Contact{FirstName: "Anna", LastName: "Lee", Email: &email}
	out := RenderPlaceholders("Hi {{first_name}} {{last_name}} from {{company}} <{{email}}> {{unknown}}", c)
	assert.Equal(t, "Hi Anna Lee from  <anna@example.com> {{unknown}}", out)
}

func TestMarketingService_ListMembersIdempotent(t *testing.T) {
	f := newMarketingFixture()
	ctx := context.Background()
	a := f.contact(t, "Anna", nil, nil)
	b := f.contact(t, "Bob", nil, nil)

	l := f.listWith(t, a)
	added, updated, err := f.svc.AddMembers(ctx, l.ID, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, updated.MemberCount)

	_, _, err = f.svc.AddMembers(ctx, l.ID, nil)
	assert.True(t, apperror.IsValidation(err))
	_, _, err = f.svc.AddMembers(ctx, l.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, apperror.ErrContactNotFound)
	_, _, err = f.svc.AddMembers(ctx, uuid.New(), []uuid.UUID{a.ID})
	assert.ErrorIs(t, err, apperror.ErrListNotFound)

	require.NoError(t, f.svc.RemoveMember(ctx, l.ID, a.ID))
	members, err := f.svc.Members(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, b.ID, members[0].ID)

	renamed, err := f.svc.UpdateList(ctx, l.ID, ListInput{Name: "VIP"})
	require.NoError(t, err)
	assert.Equal(t, "VIP", renamed.Name)

	require.NoError(t, f.svc.DeleteList(ctx, l.ID))
	_, err = f.svc.GetList(ctx, l.ID)
	assert.ErrorIs(t, err, apperror.ErrListNotFound)
}

func TestMarketingService_CampaignValidation(t *testing.T) {
	f := newMarketingFixture()
	ctx := context.Background()
	missing := uuid.New()

	cases := []CampaignInput{
		{Name: "", Channel: "email", Subject: ptr("s"), Content: "x"},
		{Name: "N", Channel: "sms", Content: "x"},
		{Name: "N", Channel: "email", Content: "x"},
		{Name: "N", Channel: "whatsapp", Content: " "},
	}
	for _, in := range cases {
		_, err := f.svc.CreateCampaign(ctx, Actor{}, in)
		assert.True(t, apperror.IsValidation(err), "%+v", in)
	}

	_, err := f.svc.CreateCampaign(ctx, Actor{}, CampaignInput{Name: "N", Channel: "whatsapp", Content: "x", ListID: &missing})
	assert.ErrorIs(t, err, apperror.ErrListNotFound)

	c, err := f.svc.CreateCampaign(ctx, Actor{}, CampaignInput{Name: "N", Channel: "WhatsApp", Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.CampaignChannelWhatsApp, c.Channel)
	assert.Equal(t, models.CampaignStatusDraft, c.Status)
}

func TestMarketingService_SendEmailCampaign(t *testing.T) {
	f := newMarketingFixture()
	ctx := context.Background()
	anna := f.contact(t, "Anna", ptr("anna@example.com"), nil)
	noEmail := f.contact(t, "Bob", nil, ptr("+15550001111"))
	l := f.listWith(t, anna, noEmail)

	c, err := f.svc.CreateCampaign(ctx, Actor{}, CampaignInput{
		Name: "Весна", Channel: "email", ListID: &l.ID,
		Subject: ptr("Привет, {{first_name}}"), Content: "{{first_name}} из {{company}}, скидка!",
	})
	require.NoError(t, err)

	sent, err := f.svc.Send(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusSent, sent.Status)
	assert.Equal(t, 1, sent.SentCount)
	assert.Equal(t, 0, sent.FailedCount)
	require.NotNil(t, sent.SentAt)

	require.Len(t, f.email.sent, 1)
	assert.Equal(t, "Привет, Anna", f.email.sent[0].Subject)
	assert.Equal(t, "Anna из Acme, скидка!", f.email.sent[0].Text)

	deliveries, err := f.svc.Deliveries(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	statuses := map[uuid.UUID]string{}
	for _, d := range deliveries {
		statuses[d.ContactID] = d.Status
	}
	assert.Equal(t, models.DeliveryStatusSent, statuses[anna.ID])
	assert.Equal(t, models.DeliveryStatusSkipped, statuses[noEmail.ID])

	_, err = f.svc.Send(ctx, c.ID)
	assert.True(t, apperror.IsConflict(err))

	_, err = f.svc.UpdateCampaign(ctx, c.ID, CampaignInput{Name: "X", Channel: "email", Subject: ptr("s"), Content: "x"})
	assert.True(t, apperror.IsConflict(err))
}

func TestMarketingService_SendAllFailedMarksFailed(t *testing.T) {
	f := newMarketingFixture()
	ctx := context.Background()
	f.whatsapp.failb = true
	l := f.listWith(t, f.contact(t, "Anna", nil, ptr("+15550001111")))

	c, err := f.svc.CreateCampaign(ctx, Actor{}, CampaignInput{Name: "WA", Channel: "whatsapp", ListID: &l.ID, Content: "Hi"})
	require.NoError(t, err)

	sent, err := f.svc.Send(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusFailed, sent.Status)
	assert.Equal(t, 1, sent.FailedCount)

	deliveries, err := f.svc.Deliveries(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.NotNil(t, deliveries[0].Error)
	assert.Contains(t, *deliveries[0].Error, "provider down")
}

func TestMarketingService_SendRequiresMembers(t *testing.T) {
	f := newMarketingFixture()
	ctx := context.Background()

	noList, err := f.svc.CreateCampaign(ctx, Actor{}, CampaignInput{Name: "N", Channel: "whatsapp", Content: "x"})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, noList.ID)
	assert.True(t, apperror.IsValidation(err))

	empty := f.listWith(t)
	c, err := f.svc.CreateCampaign(ctx, Actor{}, CampaignInput{Name: "N", Channel: "whatsapp", Content: "x", ListID: &empty.ID})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, c.ID)
	assert.True(t, apperror.IsValidation(err))
}

func TestMarketingService_ScheduleAndSendDue(t *testing.T) {
	f := newMarketingFixture()
	ctx := context.Background()
	l := f.listWith(t, f.contact(t, "Anna", nil, ptr("+15550001111")))

	c, err := f.svc.CreateCampaign(ctx, Actor{}, CampaignInput{Name: "WA", Channel: "whatsapp", ListID: &l.ID, Content: "Hi {{first_name}}"})
	require.NoError(t, err)

	_, err = f.svc.Schedule(ctx, c.ID, f.now.Add(-time.Minute))
	assert.True(t, apperror.IsValidation(err))

	scheduled, err := f.svc.Schedule(ctx, c.ID, f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusScheduled, scheduled.Status)

	n, err := f.svc.SendDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "время ещё не наступило")

	f.now = f.now.Add(2 * time.Hour)
	n, err = f.svc.SendDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Hi Anna", f.whatsapp.sent["+15550001111"])

	n, err = f.svc.SendDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// flakyMarketingRepo отказывает в первой записи кампании.
type flakyMarketingRepo struct {
	MarketingRepository
	failures int
}

func (r *flakyMarketingRepo) UpdateCampaign(ctx context.Context, c *models.Campaign) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset")
	}
	return r.MarketingRepository.UpdateCampaign(ctx, c)
}

func TestMarketingService_SendDoesNotLeaveCampaignSending(t *testing.T) {
	f := newMarketingFixture()
	ctx := context.Background()
	repo := &flakyMarketingRepo{MarketingRepository: f.store.Marketing()}
	f.svc.repo = repo
	l := f.listWith(t, f.contact(t, "Anna", nil, ptr("+15550001111")))

	c, err := f.svc.CreateCampaign(ctx, Actor{}, CampaignInput{Name: "WA", Channel: "whatsapp", ListID: &l.ID, Content: "Hi"})
	require.NoError(t, err)

	repo.failures = 1
	_, err = f.svc.Send(ctx, c.ID)
	require.Error(t, err)

	stored, err := f.svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusSent, stored.Status)
	assert.Equal(t, 1, stored.SentCount)
	require.NoError(t, f.svc.DeleteCampaign(ctx, c.ID))
}
