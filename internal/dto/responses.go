package dto

import (
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Pagination describes the page of a list response
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListResponse wraps a page of items with its pagination
type ListResponse[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User   *models.User       `json:"user"`
	Tokens *service.TokenPair `json:"tokens"`
}

// ProposalResponse adds the public client link to a proposal
type ProposalResponse struct {
	*models.Proposal
	PublicURL string `json:"public_url"`
}

// MembersAddedResponse is returned after adding contacts to a marketing list
type MembersAddedResponse struct {
	Added int                   `json:"added"`
	List  *models.MarketingList `json:"list"`
}
