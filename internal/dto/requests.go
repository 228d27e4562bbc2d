package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// ContactRequest represents the body of contact create and update
type ContactRequest struct {
	FirstName    string              `json:"first_name"`
	LastName     string              `json:"last_name"`
	Email        *string             `json:"email"`
	Phone        *string             `json:"phone"`
	Company      *string             `json:"company"`
	Position     *string             `json:"position"`
	Status       string              `json:"status"`
	Source       *string             `json:"source"`
	Tags         []string            `json:"tags"`
	Notes        *string             `json:"notes"`
	OwnerID      *uuid.UUID          `json:"owner_id"`
	CustomFields models.CustomFields `json:"custom_fields"`
}

// ToInput converts the request to the service input
func (r ContactRequest) ToInput() service.ContactInput {
	return service.ContactInput{
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Email:        r.Email,
		Phone:        r.Phone,
		Company:      r.Company,
		Position:     r.Position,
		Status:       r.Status,
		Source:       r.Source,
		Tags:         r.Tags,
		Notes:        r.Notes,
		OwnerID:      r.OwnerID,
		CustomFields: r.CustomFields,
	}
}

// DealRequest represents the body of deal create and update
type DealRequest struct {
	Title             string              `json:"title"`
	ContactID         *uuid.UUID          `json:"contact_id"`
	OwnerID           *uuid.UUID          `json:"owner_id"`
	StageID           uuid.UUID           `json:"stage_id"`
	Value             float64             `json:"value"`
	Currency          string              `json:"currency"`
	ExpectedCloseDate *time.Time          `json:"expected_close_date"`
	Notes             *string             `json:"notes"`
	CustomFields      models.CustomFields `json:"custom_fields"`
}

// ToInput converts the request to the service input
func (r DealRequest) ToInput() service.DealInput {
	return service.DealInput{
		Title:             r.Title,
		ContactID:         r.ContactID,
		OwnerID:           r.OwnerID,
		StageID:           r.StageID,
		Value:             r.Value,
		Currency:          r.Currency,
		ExpectedCloseDate: r.ExpectedCloseDate,
		Notes:             r.Notes,
		CustomFields:      r.CustomFields,
	}
}

// ProposalItemRequest represents a single proposal line
type ProposalItemRequest struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// ProposalRequest represents the body of proposal create and update
type ProposalRequest struct {
	Title        string                `json:"title"`
	ContactID    *uuid.UUID            `json:"contact_id"`
	DealID       *uuid.UUID            `json:"deal_id"`
	Currency     string                `json:"currency"`
	Items        []ProposalItemRequest `json:"items"`
	Discount     float64               `json:"discount"`
	TaxRate      *float64              `json:"tax_rate"`
	ValidUntil   *time.Time            `json:"valid_until"`
	Introduction *string               `json:"introduction"`
	Terms        *string               `json:"terms"`
}

// ToInput converts the request to the service input
func (r ProposalRequest) ToInput() service.ProposalInput {
	items := make([]service.ProposalItemInput, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, service.ProposalItemInput{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return service.ProposalInput{
		Title:        r.Title,
		ContactID:    r.ContactID,
		DealID:       r.DealID,
		Currency:     r.Currency,
		Items:        items,
		Discount:     r.Discount,
		TaxRate:      r.TaxRate,
		ValidUntil:   r.ValidUntil,
		Introduction: r.Introduction,
		Terms:        r.Terms,
	}
}

// AppointmentRequest represents the body of appointment create and update
type AppointmentRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	ContactID   *uuid.UUID `json:"contact_id"`
	DealID      *uuid.UUID `json:"deal_id"`
	UserID      *uuid.UUID `json:"user_id"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Location    *string    `json:"location"`
	MeetingURL  *string    `json:"meeting_url"`
}

// ToInput converts the request to the service input
func (r AppointmentRequest) ToInput() service.AppointmentInput {
	return service.AppointmentInput{
		Title:       r.Title,
		Description: r.Description,
		ContactID:   r.ContactID,
		DealID:      r.DealID,
		UserID:      r.UserID,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
		Location:    r.Location,
		MeetingURL:  r.MeetingURL,
	}
}

// CampaignRequest represents the body of campaign create and update
type CampaignRequest struct {
	Name    string     `json:"name"`
	Channel string     `json:"channel"`
	ListID  *uuid.UUID `json:"list_id"`
	Subject *string    `json:"subject"`
	Content string     `json:"content"`
}

// ToInput converts the request to the service input
func (r CampaignRequest) ToInput() service.CampaignInput {
	return service.CampaignInput{
		Name:    r.Name,
		Channel: r.Channel,
		ListID:  r.ListID,
		Subject: r.Subject,
		Content: r.Content,
	}
}

// StageRequest represents the body of pipeline stage create and update
type StageRequest struct {
	Name        string  `json:"name"`
	Probability int     `json:"probability"`
	Color       *string `json:"color"`
	IsWon       bool    `json:"is_won"`
	IsLost      bool    `json:"is_lost"`
	Position    *int    `json:"position"`
}

// ToInput converts the request to the service input
func (r StageRequest) ToInput() service.StageInput {
	return service.StageInput{
		Name:        r.Name,
		Probability: r.Probability,
		Color:       r.Color,
		IsWon:       r.IsWon,
		IsLost:      r.IsLost,
		Position:    r.Position,
	}
}

// FieldRequest represents the body of form field create and update
type FieldRequest struct {
	Key      string   `json:"key"`
	Label    *string  `json:"label"`
	Type     *string  `json:"type"`
	Options  []string `json:"options"`
	Required *bool    `json:"required"`
	Visible  *bool    `json:"visible"`
	Position *int     `json:"position"`
}

// ToInput converts the request to the service input
func (r FieldRequest) ToInput() service.FieldInput {
	return service.FieldInput{
		Key:      r.Key,
		Label:    r.Label,
		Type:     r.Type,
		Options:  r.Options,
		Required: r.Required,
		Visible:  r.Visible,
		Position: r.Position,
	}
}

// SettingsRequest represents the body of company settings update
type SettingsRequest struct {
	CompanyName string  `json:"company_name"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	Website     *string `json:"website"`
	Currency    string  `json:"currency"`
	TaxRate     float64 `json:"tax_rate"`
	Timezone    string  `json:"timezone"`
}

// ToInput converts the request to the service input
func (r SettingsRequest) ToInput() service.SettingsInput {
	return service.SettingsInput{
		CompanyName: r.CompanyName,
		Email:       r.Email,
		Phone:       r.Phone,
		Address:     r.Address,
		Website:     r.Website,
		Currency:    r.Currency,
		TaxRate:     r.TaxRate,
		Timezone:    r.Timezone,
	}
}

// StatusRequest represents a status change
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}
