package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact описывает клиента или лида.
type Contact struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	OwnerID      *uuid.UUID   `db:"owner_id" json:"owner_id,omitempty"`
	FirstName    string       `db:"first_name" json:"first_name"`
	LastName     string       `db:"last_name" json:"last_name"`
	Email        *string      `db:"email" json:"email,omitempty"`
	Phone        *string      `db:"phone" json:"phone,omitempty"`
	Company      *string      `db:"company" json:"company,omitempty"`
	Position     *string      `db:"position" json:"position,omitempty"`
	Status       string       `db:"status" json:"status"`
	Source       *string      `db:"source" json:"source,omitempty"`
	Tags         []string     `db:"tags" json:"tags"`
	Notes        *string      `db:"notes" json:"notes,omitempty"`
	CustomFields CustomFields `db:"custom_fields" json:"custom_fields"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// FullName возвращает имя и фамилию контакта.
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ContactFilter задаёт фильтры списка контактов.
type ContactFilter struct {
	Query   string
	Status  string
	Tag     string
	OwnerID *uuid.UUID
	IDs     []uuid.UUID
	Limit   int
	Offset  int
}

// ContactTimeline собирает всё, что связано с контактом.
type ContactTimeline struct {
	Contact      *Contact      `json:"contact"`
	Deals        []Deal        `json:"deals"`
	Activities   []Activity    `json:"activities"`
	Appointments []Appointment `json:"appointments"`
	Proposals    []Proposal    `json:"proposals"`
}
