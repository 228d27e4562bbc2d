package models

import (
	"time"

	"github.com/google/uuid"
)

// Proposal описывает коммерческое предложение клиенту.
type Proposal struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Number        string         `db:"number" json:"number"`
	Title         string         `db:"title" json:"title"`
	ContactID     *uuid.UUID     `db:"contact_id" json:"contact_id,omitempty"`
	DealID        *uuid.UUID     `db:"deal_id" json:"deal_id,omitempty"`
	OwnerID       uuid.UUID      `db:"owner_id" json:"owner_id"`
	Status        string         `db:"status" json:"status"`
	Currency      string         `db:"currency" json:"currency"`
	Subtotal      float64        `db:"subtotal" json:"subtotal"`
	Discount      float64        `db:"discount" json:"discount"`
	TaxRate       float64        `db:"tax_rate" json:"tax_rate"`
	Total         float64        `db:"total" json:"total"`
	ValidUntil    *time.Time     `db:"valid_until" json:"valid_until,omitempty"`
	Introduction  *string        `db:"introduction" json:"introduction,omitempty"`
	Terms         *string        `db:"terms" json:"terms,omitempty"`
	PublicToken   string         `db:"public_token" json:"public_token"`
	SignerName    *string        `db:"signer_name" json:"signer_name,omitempty"`
	SignerEmail   *string        `db:"signer_email" json:"signer_email,omitempty"`
	SignatureData *string        `db:"signature_data" json:"-"`
	SignedAt      *time.Time     `db:"signed_at" json:"signed_at,omitempty"`
	SentAt        *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	ViewedAt      *time.Time     `db:"viewed_at" json:"viewed_at,omitempty"`
	PDFKey        *string        `db:"pdf_key" json:"pdf_key,omitempty"`
	Items         []ProposalItem `db:"-" json:"items"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// ProposalItem описывает строку предложения.
type ProposalItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ProposalID  uuid.UUID `db:"proposal_id" json:"proposal_id"`
	Description string    `db:"description" json:"description"`
	Quantity    float64   `db:"quantity" json:"quantity"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	Position    int       `db:"position" json:"position"`
}

// Amount возвращает стоимость строки.
func (i ProposalItem) Amount() float64 {
	return i.Quantity * i.UnitPrice
}

// IsFinal сообщает, что предложение уже принято, отклонено или истекло.
func (p *Proposal) IsFinal() bool {
	switch p.Status {
	case ProposalStatusAccepted, ProposalStatusRejected, ProposalStatusExpired:
		return true
	}
	return false
}

// ProposalFilter задаёт фильтры списка предложений.
type ProposalFilter struct {
	Status    string
	ContactID *uuid.UUID
	DealID    *uuid.UUID
	Limit     int
	Offset    int
}
