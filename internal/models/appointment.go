package models

import (
	"time"

	"github.com/google/uuid"
)

// Appointment описывает встречу с клиентом.
type Appointment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	ContactID   *uuid.UUID `db:"contact_id" json:"contact_id,omitempty"`
	DealID      *uuid.UUID `db:"deal_id" json:"deal_id,omitempty"`
	UserID      *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	StartsAt    time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time  `db:"ends_at" json:"ends_at"`
	Location    *string    `db:"location" json:"location,omitempty"`
	MeetingURL  *string    `db:"meeting_url" json:"meeting_url,omitempty"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// AppointmentFilter задаёт фильтры календаря.
type AppointmentFilter struct {
	From      *time.Time
	To        *time.Time
	UserID    *uuid.UUID
	ContactID *uuid.UUID
	Status    string
	Limit     int
}
