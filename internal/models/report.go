package models

import (
	"time"

	"github.com/google/uuid"
)

// Dashboard сводка для главной страницы.
type Dashboard struct {
	ContactsByStatus     map[string]int     `json:"contacts_by_status"`
	DealsByStatus        map[string]int     `json:"deals_by_status"`
	OpenPipelineValue    map[string]float64 `json:"open_pipeline_value"`
	WonThisMonth         map[string]float64 `json:"won_this_month"`
	ActivitiesDue        int                `json:"activities_due"`
	ActivitiesOverdue    int                `json:"activities_overdue"`
	UpcomingAppointments []Appointment      `json:"upcoming_appointments"`
	RecentActivities     []Activity         `json:"recent_activities"`
	GeneratedAt          time.Time          `json:"generated_at"`
}

// StageReport показатели одного этапа воронки.
type StageReport struct {
	StageID     uuid.UUID          `json:"stage_id"`
	Name        string             `json:"name"`
	Probability int                `json:"probability"`
	IsWon       bool               `json:"is_won"`
	IsLost      bool               `json:"is_lost"`
	Count       int                `json:"count"`
	Value       map[string]float64 `json:"value"`
}

// PipelineReport отчёт по воронке продаж.
type PipelineReport struct {
	Stages          []StageReport      `json:"stages"`
	TotalDeals      int                `json:"total_deals"`
	OpenDeals       int                `json:"open_deals"`
	WonDeals        int                `json:"won_deals"`
	LostDeals       int                `json:"lost_deals"`
	ConversionRate  float64            `json:"conversion_rate"`
	AverageDealSize map[string]float64 `json:"average_deal_size"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// AIReport текстовый анализ воронки.
type AIReport struct {
	Summary  string         `json:"summary"`
	Source   string         `json:"source"`
	Pipeline PipelineReport `json:"pipeline"`
}
