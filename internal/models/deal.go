package models

import (
	"time"

	"github.com/google/uuid"
)

// PipelineStage описывает этап воронки продаж.
type PipelineStage struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Position    int       `db:"position" json:"position"`
	Probability int       `db:"probability" json:"probability"`
	Color       *string   `db:"color" json:"color,omitempty"`
	IsWon       bool      `db:"is_won" json:"is_won"`
	IsLost      bool      `db:"is_lost" json:"is_lost"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DealStatus возвращает статус сделки, соответствующий этапу.
func (s *PipelineStage) DealStatus() string {
	switch {
	case s.IsWon:
		return DealStatusWon
	case s.IsLost:
		return DealStatusLost
	default:
		return DealStatusOpen
	}
}

// Deal описывает сделку в воронке.
type Deal struct {
	ID                uuid.UUID    `db:"id" json:"id"`
	Title             string       `db:"title" json:"title"`
	ContactID         *uuid.UUID   `db:"contact_id" json:"contact_id,omitempty"`
	OwnerID           *uuid.UUID   `db:"owner_id" json:"owner_id,omitempty"`
	StageID           uuid.UUID    `db:"stage_id" json:"stage_id"`
	Value             float64      `db:"value" json:"value"`
	Currency          string       `db:"currency" json:"currency"`
	Status            string       `db:"status" json:"status"`
	ExpectedCloseDate *time.Time   `db:"expected_close_date" json:"expected_close_date,omitempty"`
	Notes             *string      `db:"notes" json:"notes,omitempty"`
	CustomFields      CustomFields `db:"custom_fields" json:"custom_fields"`
	ClosedAt          *time.Time   `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// DealFilter задаёт фильтры списка сделок.
type DealFilter struct {
	StageID   *uuid.UUID
	Status    string
	OwnerID   *uuid.UUID
	ContactID *uuid.UUID
	Limit     int
	Offset    int
}

// BoardColumn описывает колонку канбан-доски воронки.
type BoardColumn struct {
	Stage         PipelineStage `json:"stage"`
	Deals         []Deal        `json:"deals"`
	Count         int           `json:"count"`
	TotalValue    float64       `json:"total_value"`
	WeightedValue float64       `json:"weighted_value"`
}
