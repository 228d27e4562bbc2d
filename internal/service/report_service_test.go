package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/ai"
	"github.com/ignatzorin/crm-backend/internal/cache"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
)

type fakeCompleter struct {
	available bool
	answer    string
	err       error
	calls     int
	chunks    []string
	prompts   [][]ai.Message
}

func (f *fakeCompleter) Available() bool { return f.available }

func (f *fakeCompleter) Complete(_ context.Context, messages []ai.Message, _ int) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, messages)
	return f.answer, f.err
}

func (f *fakeCompleter) Stream(_ context.Context, messages []ai.Message, _ int, onDelta func(string) error) error {
	f.calls++
	f.prompts = append(f.prompts, messages)
	for _, c := range f.chunks {
		if err := onDelta(c); err != nil {
			return err
		}
	}
	return f.err
}

type failingCounter struct{}

func (failingCounter) CountByStatus(context.Context) (map[string]int, error) {
	return nil, errors.New("connection refused")
}

func newReportTestService(t *testing.T, store *memory.Store, completer Completer) *ReportService {
	t.Helper()
	svc := NewReportService(ReportServiceDeps{
		Contacts:     store.Contacts(),
		Deals:        store.Deals(),
		Activities:   store.Activities(),
		Appointments: store.Appointments(),
		Stages:       NewPipelineService(store.Stages(), store.Deals()),
		Cache:        cache.NewMemoryCache(),
		AI:           completer,
	})
	return svc
}

func seedReportData(t *testing.T, store *memory.Store, now time.Time, userID uuid.UUID) []models.PipelineStage {
	t.Helper()
	ctx := context.Background()

	stages, err := NewPipelineService(store.Stages(), store.Deals()).Stages(ctx)
	require.NoError(t, err)
	won, lost := stages[4], stages[5]

	for _, status := range []string{models.ContactStatusLead, models.ContactStatusLead, models.ContactStatusCustomer} {
		require.NoError(t, store.Contacts().Create(ctx, &models.Contact{FirstName: "C", Status: status}))
	}

	closedNow := now.Add(-time.Hour)
	closedLastMonth := now.AddDate(0, -1, 0)
	deals := []models.Deal{
		{Title: "A", StageID: stages[0].ID, Value: 100, Currency: "USD", Status: models.DealStatusOpen},
		{Title: "B", StageID: stages[2].ID, Value: 50.5, Currency: "USD", Status: models.DealStatusOpen},
		{Title: "C", StageID: won.ID, Value: 200, Currency: "EUR", Status: models.DealStatusWon, ClosedAt: &closedNow},
		{Title: "D", StageID: won.ID, Value: 300, Currency: "EUR", Status: models.DealStatusWon, ClosedAt: &closedLastMonth},
		{Title: "E", StageID: lost.ID, Value: 10, Currency: "USD", Status: models.DealStatusLost, ClosedAt: &closedNow},
	}
	for i := range deals {
		require.NoError(t, store.Deals().Create(ctx, &deals[i]))
	}

	soon, past := now.Add(time.Hour), now.Add(-time.Hour)
	for _, due := range []*time.Time{&soon, &past} {
		require.NoError(t, store.Activities().Create(ctx, &models.Activity{Type: models.ActivityTypeTask, Subject: "t", DueAt: due}))
	}

	other := uuid.New()
	for _, a := range []models.Appointment{
		{Title: "Демо", UserID: &userID, StartsAt: now.Add(48 * time.Hour), EndsAt: now.Add(49 * time.Hour), Status: models.AppointmentStatusScheduled},
		{Title: "Чужая", UserID: &other, StartsAt: now.Add(48 * time.Hour), EndsAt: now.Add(49 * time.Hour), Status: models.AppointmentStatusScheduled},
		{Title: "Далеко", UserID: &userID, StartsAt: now.Add(10 * 24 * time.Hour), EndsAt: now.Add(241 * time.Hour), Status: models.AppointmentStatusScheduled},
	} {
		a := a
		require.NoError(t, store.Appointments().Create(ctx, &a))
	}
	return stages
}

func TestReportService_Dashboard(t *testing.T) {
	store := memory.NewStore()
	svc := newReportTestService(t, store, nil)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	userID := uuid.New()
	seedReportData(t, store, now, userID)

	d, err := svc.Dashboard(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"lead": 2, "customer": 1}, d.ContactsByStatus)
	assert.Equal(t, 2, d.DealsByStatus[models.DealStatusOpen])
	assert.Equal(t, 2, d.DealsByStatus[models.DealStatusWon])
	assert.Equal(t, map[string]float64{"USD": 150.5}, d.OpenPipelineValue)
	assert.Equal(t, map[string]float64{"EUR": 200}, d.WonThisMonth)
	assert.Equal(t, 1, d.ActivitiesDue)
	assert.Equal(t, 1, d.ActivitiesOverdue)
	require.Len(t, d.UpcomingAppointments, 1)
	assert.Equal(t, "Демо", d.UpcomingAppointments[0].Title)
	assert.Len(t, d.RecentActivities, 2)
}

func TestReportService_DashboardIsCachedUntilInvalidated(t *testing.T) {
	store := memory.NewStore()
	svc := newReportTestService(t, store, nil)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.Dashboard(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, first.ContactsByStatus)

	require.NoError(t, store.Contacts().Create(ctx, &models.Contact{FirstName: "N", Status: models.ContactStatusLead}))

	cached, err := svc.Dashboard(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, cached.ContactsByStatus)

	require.NoError(t, svc.InvalidateDashboard(ctx))

	fresh, err := svc.Dashboard(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.ContactsByStatus[models.ContactStatusLead])
}

func TestReportService_DashboardDegradesOnQueryError(t *testing.T) {
	store := memory.NewStore()
	svc := newReportTestService(t, store, nil)
	svc.deps.Contacts = failingCounter{}

	d, err := svc.Dashboard(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, d.ContactsByStatus)
	assert.Empty(t, d.ContactsByStatus)
	assert.NotNil(t, d.UpcomingAppointments)
}

func TestReportService_PipelineReport(t *testing.T) {
	store := memory.NewStore()
	svc := newReportTestService(t, store, nil)
	now := time.Now()
	stages := seedReportData(t, store, now, uuid.New())

	r, err := svc.PipelineReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, r.TotalDeals)
	assert.Equal(t, 2, r.OpenDeals)
	assert.Equal(t, 2, r.WonDeals)
	assert.Equal(t, 1, r.LostDeals)
	assert.Equal(t, 66.67, r.ConversionRate)
	assert.Equal(t, map[string]float64{"USD": 53.5, "EUR": 250}, r.AverageDealSize)

	require.Len(t, r.Stages, len(stages))
	assert.Equal(t, "Lead", r.Stages[0].Name)
	assert.Equal(t, 1, r.Stages[0].Count)
	assert.Equal(t, 0, r.Stages[1].Count)
	assert.Equal(t, map[string]float64{"EUR": 500}, r.Stages[4].Value)
}

func TestReportService_PipelineReportWithoutClosedDeals(t *testing.T) {
	report := summarizePipeline(DefaultStages(), []models.Deal{{Status: models.DealStatusOpen, Value: 10, Currency: "USD"}}, time.Now())
	assert.Zero(t, report.ConversionRate)
	assert.Equal(t, 1, report.OpenDeals)
}

func TestReportService_AIReport(t *testing.T) {
	store := memory.NewStore()
	completer := &fakeCompleter{available: true, answer: "Узкое место на этапе Proposal"}
	svc := newReportTestService(t, store, completer)
	seedReportData(t, store, time.Now(), uuid.New())

	r, err := svc.AIReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ai", r.Source)
	assert.Equal(t, "Узкое место на этапе Proposal", r.Summary)
	assert.Equal(t, 5, r.Pipeline.TotalDeals)
	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0][1].Content, "Конверсия: 66.7%")
}

func TestReportService_AIReportFallback(t *testing.T) {
	cases := map[string]Completer{
		"not configured": &fakeCompleter{available: false},
		"provider error": &fakeCompleter{available: true, err: errors.New("timeout")},
		"nil":            nil,
	}
	for name, completer := range cases {
		t.Run(name, func(t *testing.T) {
			store := memory.NewStore()
			svc := newReportTestService(t, store, completer)

			r, err := svc.AIReport(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "fallback", r.Source)
			assert.Contains(t, r.Summary, "нет сделок")
		})
	}
}
