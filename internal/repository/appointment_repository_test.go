package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/crm-backend/internal/models"
)

func columnSet(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func TestBuildAppointmentInsert_LegacySchema(t *testing.T) {
	loc := "Офис"
	a := &models.Appointment{
		Title:    "Демо",
		StartsAt: time.Now(),
		EndsAt:   time.Now().Add(time.Hour),
		Status:   models.AppointmentStatusScheduled,
		Location: &loc,
	}

	query, args := buildAppointmentInsert(a, columnSet("id", "title", "starts_at"))

	assert.Equal(t,
		"INSERT INTO appointments (title, description, contact_id, user_id, starts_at, ends_at, status) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at",
		query)
	assert.Len(t, args, 7)
}

func TestBuildAppointmentInsert_WithOptionalColumns(t *testing.T) {
	dealID := uuid.New()
	url := "https://meet.example.com/x"
	a := &models.Appointment{Title: "Звонок", DealID: &dealID, MeetingURL: &url}

	query, args := buildAppointmentInsert(a, columnSet("deal_id", "meeting_url"))

	assert.Contains(t, query, "status, deal_id, meeting_url)")
	assert.Contains(t, query, "$9)")
	assert.NotContains(t, query, "location")
	assert.Equal(t, &dealID, args[7])
	assert.Equal(t, &url, args[8])
}

func TestBuildAppointmentUpdate_ShiftsPlaceholders(t *testing.T) {
	a := &models.Appointment{ID: uuid.New(), Title: "Встреча"}

	query, args := buildAppointmentUpdate(a, columnSet("location"))

	assert.Contains(t, query, "title = $2")
	assert.Contains(t, query, "location = $9")
	assert.Contains(t, query, "WHERE id = $1")
	assert.Equal(t, a.ID, args[0])
	assert.Len(t, args, 9)
}
