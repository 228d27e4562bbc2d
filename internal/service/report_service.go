package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ignatzorin/crm-backend/internal/ai"
	"github.com/ignatzorin/crm-backend/internal/cache"
	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/pkg/money"
)

const (
	dashboardTTL         = 60 * time.Second
	upcomingWindow       = 7 * 24 * time.Hour
	recentActivities     = 10
	upcomingAppointments = 10
)

// StatusCounter считает записи по статусам.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// DealStats агрегаты по сделкам.
type DealStats interface {
	StatusCounter
	SumByCurrency(ctx context.Context, status string, closedSince *time.Time) (map[string]float64, error)
	List(ctx context.Context, f models.DealFilter) ([]models.Deal, int, error)
}

// ActivityStats агрегаты по активностям.
type ActivityStats interface {
	ActivityLister
	CountDue(ctx context.Context, now, until time.Time) (int, int, error)
}

// StageSource отдаёт этапы воронки (с дефолтами).
type StageSource interface {
	Stages(ctx context.Context) ([]models.PipelineStage, error)
}

// Completer отвечает на промпт через языковую модель.
type Completer interface {
	Available() bool
	Complete(ctx context.Context, messages []ai.Message, maxTokens int) (string, error)
}

// ReportServiceDeps зависимости ReportService.
type ReportServiceDeps struct {
	Contacts     StatusCounter
	Deals        DealStats
	Activities   ActivityStats
	Appointments AppointmentLister
	Stages       StageSource
	Cache        cache.Cache
	AI           Completer
}

// ReportService собирает дашборд и отчёты по воронке.
type ReportService struct {
	deps ReportServiceDeps
	now  func() time.Time
}

// NewReportService создаёт сервис отчётов.
func NewReportService(deps ReportServiceDeps) *ReportService {
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryCache()
	}
	return &ReportService{deps: deps, now: time.Now}
}

// Dashboard возвращает сводку пользователя, кешированную на минуту.
func (s *ReportService) Dashboard(ctx context.Context, userID uuid.UUID) (*models.Dashboard, error) {
	d, err := cache.GetOrSet(ctx, s.deps.Cache, cache.DashboardKey(userID), dashboardTTL,
		func(ctx context.Context) (*models.Dashboard, error) {
			return s.buildDashboard(ctx, userID)
		})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return d, nil
}

// InvalidateDashboard сбрасывает кеш дашбордов и отчётов.
func (s *ReportService) InvalidateDashboard(ctx context.Context) error {
	if err := s.deps.Cache.DeleteByPrefix(ctx, cache.DashboardPrefix); err != nil {
		return apperror.Internal(err)
	}
	if err := s.deps.Cache.DeleteByPrefix(ctx, cache.ReportsPrefix); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

func (s *ReportService) buildDashboard(ctx context.Context, userID uuid.UUID) (*models.Dashboard, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	d := &models.Dashboard{
		ContactsByStatus:     map[string]int{},
		DealsByStatus:        map[string]int{},
		OpenPipelineValue:    map[string]float64{},
		WonThisMonth:         map[string]float64{},
		UpcomingAppointments: []models.Appointment{},
		RecentActivities:     []models.Activity{},
		GeneratedAt:          now,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.deps.Contacts.CountByStatus(gctx)
		if err == nil {
			d.ContactsByStatus = counts
		}
		return degrade(gctx, "contacts_by_status", err)
	})
	g.Go(func() error {
		counts, err := s.deps.Deals.CountByStatus(gctx)
		if err == nil {
			d.DealsByStatus = counts
		}
		return degrade(gctx, "deals_by_status", err)
	})
	g.Go(func() error {
		sums, err := s.deps.Deals.SumByCurrency(gctx, models.DealStatusOpen, nil)
		if err == nil {
			d.OpenPipelineValue = roundAmounts(sums)
		}
		return degrade(gctx, "open_pipeline_value", err)
	})
	g.Go(func() error {
		sums, err := s.deps.Deals.SumByCurrency(gctx, models.DealStatusWon, &monthStart)
		if err == nil {
			d.WonThisMonth = roundAmounts(sums)
		}
		return degrade(gctx, "won_this_month", err)
	})
	g.Go(func() error {
		due, overdue, err := s.deps.Activities.CountDue(gctx, now, now.Add(upcomingWindow))
		if err == nil {
			d.ActivitiesDue, d.ActivitiesOverdue = due, overdue
		}
		return degrade(gctx, "activities_due", err)
	})
	g.Go(func() error {
		to := now.Add(upcomingWindow)
		items, err := s.deps.Appointments.List(gctx, models.AppointmentFilter{
			From:   &now,
			To:     &to,
			UserID: &userID,
			Status: models.AppointmentStatusScheduled,
			Limit:  upcomingAppointments,
		})
		if err == nil && items != nil {
			d.UpcomingAppointments = items
		}
		return degrade(gctx, "upcoming_appointments", err)
	})
	g.Go(func() error {
		items, _, err := s.deps.Activities.List(gctx, models.ActivityFilter{Limit: recentActivities})
		if err == nil && items != nil {
			d.RecentActivities = items
		}
		return degrade(gctx, "recent_activities", err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// degrade логирует ошибку запроса и позволяет дашборду отдать значение по умолчанию.
// Прерывает сборку только отмена контекста.
func degrade(ctx context.Context, part string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	logger.Log.WithFields(logrus.Fields{"part": part, "error": err}).Warn("dashboard: используется значение по умолчанию")
	return nil
}

// PipelineReport считает показатели воронки по этапам.
func (s *ReportService) PipelineReport(ctx context.Context) (*models.PipelineReport, error) {
	r, err := cache.GetOrSet(ctx, s.deps.Cache, cache.PipelineReportKey, dashboardTTL, s.buildPipelineReport)
	if err != nil {
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.Internal(err)
	}
	return r, nil
}

func (s *ReportService) buildPipelineReport(ctx context.Context) (*models.PipelineReport, error) {
	var (
		stages []models.PipelineStage
		deals  []models.Deal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stages, err = s.deps.Stages.Stages(gctx)
		return err
	})
	g.Go(func() (err error) {
		deals, _, err = s.deps.Deals.List(gctx, models.DealFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summarizePipeline(stages, deals, s.now()), nil
}

func summarizePipeline(stages []models.PipelineStage, deals []models.Deal, now time.Time) *models.PipelineReport {
	report := &models.PipelineReport{
		Stages:          make([]models.StageReport, 0, len(stages)),
		AverageDealSize: map[string]float64{},
		GeneratedAt:     now,
	}
	index := make(map[uuid.UUID]int, len(stages))
	for i, st := range stages {
		index[st.ID] = i
		report.Stages = append(report.Stages, models.StageReport{
			StageID:     st.ID,
			Name:        st.Name,
			Probability: st.Probability,
			IsWon:       st.IsWon,
			IsLost:      st.IsLost,
			Value:       map[string]float64{},
		})
	}

	totals := map[string]float64{}
	counts := map[string]int{}
	for _, d := range deals {
		report.TotalDeals++
		switch d.Status {
		case models.DealStatusWon:
			report.WonDeals++
		case models.DealStatusLost:
			report.LostDeals++
		default:
			report.OpenDeals++
		}
		totals[d.Currency] += d.Value
		counts[d.Currency]++

		if i, ok := index[d.StageID]; ok {
			st := &report.Stages[i]
			st.Count++
			st.Value[d.Currency] = money.Round2(st.Value[d.Currency] + d.Value)
		}
	}

	if closed := report.WonDeals + report.LostDeals; closed > 0 {
		report.ConversionRate = money.Round2(float64(report.WonDeals) / float64(closed) * 100)
	}
	for cur, total := range totals {
		report.AverageDealSize[cur] = money.Round2(total / float64(counts[cur]))
	}
	return report
}

// AIReport формирует текстовый анализ воронки. Без AI отдаётся детерминированная сводка.
func (s *ReportService) AIReport(ctx context.Context) (*models.AIReport, error) {
	report, err := s.PipelineReport(ctx)
	if err != nil {
		return nil, err
	}

	out := &models.AIReport{Pipeline: *report, Source: "fallback"}
	if s.deps.AI != nil && s.deps.AI.Available() {
		text, err := s.deps.AI.Complete(ctx, ai.ReportMessages(*report), 800)
		if err == nil && text != "" {
			out.Summary, out.Source = text, "ai"
			return out, nil
		}
		logger.Log.WithError(err).Warn("report service: AI недоступен, используется сводка")
	}
	out.Summary = ai.FallbackReport(*report)
	return out, nil
}

// snapshot собирает компактный срез CRM для AI-ассистента.
func (s *ReportService) snapshot(ctx context.Context) ai.Snapshot {
	snap := ai.Snapshot{}
	now := s.now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.deps.Contacts.CountByStatus(gctx)
		snap.ContactsByStatus = counts
		return degrade(gctx, "contacts_by_status", err)
	})
	g.Go(func() error {
		counts, err := s.deps.Deals.CountByStatus(gctx)
		snap.DealsByStatus = counts
		return degrade(gctx, "deals_by_status", err)
	})
	g.Go(func() error {
		sums, err := s.deps.Deals.SumByCurrency(gctx, models.DealStatusOpen, nil)
		snap.OpenValue = roundAmounts(sums)
		return degrade(gctx, "open_pipeline_value", err)
	})
	g.Go(func() error {
		deals, _, err := s.deps.Deals.List(gctx, models.DealFilter{Status: models.DealStatusOpen})
		if err == nil {
			sort.SliceStable(deals, func(i, j int) bool { return deals[i].Value > deals[j].Value })
			if len(deals) > 5 {
				deals = deals[:5]
			}
			snap.TopDeals = deals
		}
		return degrade(gctx, "top_deals", err)
	})
	g.Go(func() error {
		due, overdue, err := s.deps.Activities.CountDue(gctx, now, now.Add(upcomingWindow))
		snap.ActivitiesDue, snap.ActivitiesOverdue = due, overdue
		return degrade(gctx, "activities_due", err)
	})
	_ = g.Wait()
	return snap
}

func roundAmounts(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = money.Round2(v)
	}
	return out
}
