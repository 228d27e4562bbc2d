package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// AppointmentRepository - in-memory реализация календаря встреч.
type AppointmentRepository struct{ s *Store }

func (s *Store) Appointments() *AppointmentRepository { return &AppointmentRepository{s: s} }

func (r *AppointmentRepository) Create(_ context.Context, a *models.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	a.ID = uuid.New()
	a.CreatedAt, a.UpdatedAt = now, now
	r.s.appointments[a.ID] = *a
	return nil
}

func (r *AppointmentRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.appointments[id]
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *AppointmentRepository) Update(_ context.Context, a *models.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.appointments[a.ID]
	if !ok {
		return repository.ErrAppointmentNotFound
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = r.s.now()
	r.s.appointments[a.ID] = *a
	return nil
}

func (r *AppointmentRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.appointments[id]; !ok {
		return repository.ErrAppointmentNotFound
	}
	delete(r.s.appointments, id)
	return nil
}

func (r *AppointmentRepository) List(_ context.Context, f models.AppointmentFilter) ([]models.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.appointments, func(a *models.Appointment) bool {
		if f.From != nil && a.StartsAt.Before(*f.From) {
			return false
		}
		if f.To != nil && !a.StartsAt.Before(*f.To) {
			return false
		}
		if f.UserID != nil && !uuidEq(a.UserID, *f.UserID) {
			return false
		}
		if f.ContactID != nil && !uuidEq(a.ContactID, *f.ContactID) {
			return false
		}
		if f.Status != "" && a.Status != f.Status {
			return false
		}
		return true
	})
	sort.Slice(items, func(i, j int) bool { return items[i].StartsAt.Before(items[j].StartsAt) })
	return page(items, f.Limit, 0), nil
}
