package models

import (
	"time"

	"github.com/google/uuid"
)

// MarketingList описывает сегмент контактов для рассылок.
type MarketingList struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	CreatedBy   *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	MemberCount int        `db:"member_count" json:"member_count"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Campaign описывает маркетинговую кампанию.
type Campaign struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Channel     string     `db:"channel" json:"channel"`
	ListID      *uuid.UUID `db:"list_id" json:"list_id,omitempty"`
	Subject     *string    `db:"subject" json:"subject,omitempty"`
	Content     string     `db:"content" json:"content"`
	Status      string     `db:"status" json:"status"`
	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	SentCount   int        `db:"sent_count" json:"sent_count"`
	FailedCount int        `db:"failed_count" json:"failed_count"`
	CreatedBy   *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CampaignDelivery фиксирует результат отправки одному получателю.
type CampaignDelivery struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CampaignID uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	ContactID  uuid.UUID  `db:"contact_id" json:"contact_id"`
	Recipient  string     `db:"recipient" json:"recipient"`
	Status     string     `db:"status" json:"status"`
	Error      *string    `db:"error" json:"error,omitempty"`
	SentAt     *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}
