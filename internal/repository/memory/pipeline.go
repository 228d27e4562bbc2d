package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// StageRepository - in-memory реализация этапов воронки.
type StageRepository struct{ s *Store }

func (s *Store) Stages() *StageRepository { return &StageRepository{s: s} }

func (r *StageRepository) List(_ context.Context) ([]models.PipelineStage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.stages, nil)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (r *StageRepository) GetByID(_ context.Context, id uuid.UUID) (*models.PipelineStage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.stages[id]
	if !ok {
		return nil, repository.ErrStageNotFound
	}
	return &st, nil
}

func (r *StageRepository) Create(_ context.Context, st *models.PipelineStage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st.ID = uuid.New()
	st.CreatedAt = r.s.now()
	r.s.stages[st.ID] = *st
	return nil
}

func (r *StageRepository) CreateMany(_ context.Context, stages []models.PipelineStage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	for i := range stages {
		if stages[i].ID == uuid.Nil {
			stages[i].ID = uuid.New()
		}
		stages[i].CreatedAt = now
		r.s.stages[stages[i].ID] = stages[i]
	}
	return nil
}

func (r *StageRepository) Update(_ context.Context, st *models.PipelineStage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.stages[st.ID]
	if !ok {
		return repository.ErrStageNotFound
	}
	st.CreatedAt = existing.CreatedAt
	r.s.stages[st.ID] = *st
	return nil
}

func (r *StageRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.stages[id]; !ok {
		return repository.ErrStageNotFound
	}
	delete(r.s.stages, id)
	return nil
}

func (r *StageRepository) CountDeals(_ context.Context, id uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	count := 0
	for _, d := range r.s.deals {
		if d.StageID == id {
			count++
		}
	}
	return count, nil
}

func (r *StageRepository) Reorder(_ context.Context, ids []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range ids {
		if _, ok := r.s.stages[id]; !ok {
			return repository.ErrStageNotFound
		}
	}
	for i, id := range ids {
		st := r.s.stages[id]
		st.Position = i
		r.s.stages[id] = st
	}
	return nil
}

// DealRepository - in-memory реализация сделок.
type DealRepository struct{ s *Store }

func (s *Store) Deals() *DealRepository { return &DealRepository{s: s} }

func cloneDeal(d models.Deal) models.Deal {
	d.CustomFields = cloneFields(d.CustomFields)
	return d
}

func (r *DealRepository) Create(_ context.Context, d *models.Deal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	d.ID = uuid.New()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.CustomFields == nil {
		d.CustomFields = models.CustomFields{}
	}
	r.s.deals[d.ID] = cloneDeal(*d)
	return nil
}

func (r *DealRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Deal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.deals[id]
	if !ok {
		return nil, repository.ErrDealNotFound
	}
	d = cloneDeal(d)
	return &d, nil
}

func (r *DealRepository) Update(_ context.Context, d *models.Deal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.deals[d.ID]
	if !ok {
		return repository.ErrDealNotFound
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = r.s.now()
	r.s.deals[d.ID] = cloneDeal(*d)
	return nil
}

func (r *DealRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.deals[id]; !ok {
		return repository.ErrDealNotFound
	}
	delete(r.s.deals, id)
	for k, a := range r.s.activities {
		if uuidEq(a.DealID, id) {
			a.DealID = nil
			r.s.activities[k] = a
		}
	}
	for k, p := range r.s.proposals {
		if uuidEq(p.DealID, id) {
			p.DealID = nil
			r.s.proposals[k] = p
		}
	}
	return nil
}

func (r *DealRepository) List(_ context.Context, f models.DealFilter) ([]models.Deal, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.deals, func(d *models.Deal) bool {
		if f.StageID != nil && d.StageID != *f.StageID {
			return false
		}
		if f.Status != "" && d.Status != f.Status {
			return false
		}
		if f.OwnerID != nil && !uuidEq(d.OwnerID, *f.OwnerID) {
			return false
		}
		if f.ContactID != nil && !uuidEq(d.ContactID, *f.ContactID) {
			return false
		}
		return true
	})
	newestFirst(items,
		func(d *models.Deal) time.Time { return d.CreatedAt },
		func(d *models.Deal) uuid.UUID { return d.ID })

	total := len(items)
	items = page(items, f.Limit, f.Offset)
	for i := range items {
		items[i] = cloneDeal(items[i])
	}
	return items, total, nil
}

func (r *DealRepository) CountByStatus(_ context.Context) (map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]int)
	for _, d := range r.s.deals {
		out[d.Status]++
	}
	return out, nil
}

func (r *DealRepository) SumByCurrency(_ context.Context, status string, closedSince *time.Time) (map[string]float64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]float64)
	for _, d := range r.s.deals {
		if d.Status != status {
			continue
		}
		if closedSince != nil && (d.ClosedAt == nil || d.ClosedAt.Before(*closedSince)) {
			continue
		}
		out[d.Currency] += d.Value
	}
	return out, nil
}
