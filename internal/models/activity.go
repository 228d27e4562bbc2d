package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity описывает звонок, письмо, встречу или заметку.
type Activity struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Type        string     `db:"type" json:"type"`
	Subject     string     `db:"subject" json:"subject"`
	Description *string    `db:"description" json:"description,omitempty"`
	ContactID   *uuid.UUID `db:"contact_id" json:"contact_id,omitempty"`
	DealID      *uuid.UUID `db:"deal_id" json:"deal_id,omitempty"`
	UserID      *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	DueAt       *time.Time `db:"due_at" json:"due_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// ActivityFilter задаёт фильтры журнала активностей.
type ActivityFilter struct {
	ContactID *uuid.UUID
	DealID    *uuid.UUID
	UserID    *uuid.UUID
	Type      string
	Pending   *bool
	Limit     int
	Offset    int
}
