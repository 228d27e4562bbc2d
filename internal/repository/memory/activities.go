package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// ActivityRepository - in-memory реализация журнала активностей.
type ActivityRepository struct{ s *Store }

func (s *Store) Activities() *ActivityRepository { return &ActivityRepository{s: s} }

func (r *ActivityRepository) Create(_ context.Context, a *models.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a.ID = uuid.New()
	a.CreatedAt = r.s.now()
	r.s.activities[a.ID] = *a
	return nil
}

func (r *ActivityRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Activity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.activities[id]
	if !ok {
		return nil, repository.ErrActivityNotFound
	}
	return &a, nil
}

func (r *ActivityRepository) List(_ context.Context, f models.ActivityFilter) ([]models.Activity, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.activities, func(a *models.Activity) bool {
		if f.ContactID != nil && !uuidEq(a.ContactID, *f.ContactID) {
			return false
		}
		if f.DealID != nil && !uuidEq(a.DealID, *f.DealID) {
			return false
		}
		if f.UserID != nil && !uuidEq(a.UserID, *f.UserID) {
			return false
		}
		if f.Type != "" && a.Type != f.Type {
			return false
		}
		if f.Pending != nil && *f.Pending != (a.CompletedAt == nil) {
			return false
		}
		return true
	})
	newestFirst(items,
		func(a *models.Activity) time.Time { return a.CreatedAt },
		func(a *models.Activity) uuid.UUID { return a.ID })

	total := len(items)
	return page(items, f.Limit, f.Offset), total, nil
}

func (r *ActivityRepository) Complete(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.activities[id]
	if !ok {
		return repository.ErrActivityNotFound
	}
	a.CompletedAt = &at
	r.s.activities[id] = a
	return nil
}

func (r *ActivityRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.activities[id]; !ok {
		return repository.ErrActivityNotFound
	}
	delete(r.s.activities, id)
	return nil
}

func (r *ActivityRepository) CountDue(_ context.Context, now, until time.Time) (int, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	due, overdue := 0, 0
	for _, a := range r.s.activities {
		if a.CompletedAt != nil || a.DueAt == nil {
			continue
		}
		switch {
		case a.DueAt.Before(now):
			overdue++
		case a.DueAt.Before(until):
			due++
		}
	}
	return due, overdue, nil
}
