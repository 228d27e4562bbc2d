package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/crm-backend/internal/models"
)

func TestNewContactDocument(t *testing.T) {
	email := "anna@example.com"
	company := "Acme"
	c := &models.Contact{ID: uuid.New(), FirstName: "Anna", LastName: "Lee", Email: &email, Company: &company, Status: models.ContactStatusLead}

	doc := NewContactDocument(c)
	assert.Equal(t, c.ID.String(), doc.ID)
	assert.Equal(t, "anna@example.com", doc.Email)
	assert.Equal(t, "Acme", doc.Company)
	assert.Empty(t, doc.Phone)
	assert.NotNil(t, doc.Tags)
}

func TestMeili_UnreachableServerIsUnhealthy(t *testing.T) {
	// порт 1 закрыт, health-check падает сразу
	m := NewMeili("http://127.0.0.1:1", "")
	ctx := context.Background()

	assert.False(t, m.Healthy(ctx))
	assert.Equal(t, "meilisearch", m.Name())

	_, err := m.SearchContacts(ctx, "anna", 10)
	assert.ErrorIs(t, err, ErrUnhealthy)
	assert.ErrorIs(t, m.IndexContact(ctx, &models.Contact{ID: uuid.New()}), ErrUnhealthy)
	assert.ErrorIs(t, m.RemoveContact(ctx, uuid.New()), ErrUnhealthy)
	assert.ErrorIs(t, m.IndexContacts(ctx, []models.Contact{{ID: uuid.New()}}), ErrUnhealthy)
}
