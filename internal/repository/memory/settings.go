package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// SettingsRepository - in-memory реализация настроек компании.
type SettingsRepository struct{ s *Store }

func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{s: s} }

func (r *SettingsRepository) Get(_ context.Context) (*models.CompanySettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if r.s.settings == nil {
		return nil, repository.ErrSettingsNotFound
	}
	out := *r.s.settings
	return &out, nil
}

func (r *SettingsRepository) Upsert(_ context.Context, settings *models.CompanySettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	settings.UpdatedAt = r.s.now()
	stored := *settings
	r.s.settings = &stored
	return nil
}

// FieldConfigRepository - in-memory реализация настроек полей: карта под мьютексом хранилища.
type FieldConfigRepository struct{ s *Store }

func (s *Store) Fields() *FieldConfigRepository { return &FieldConfigRepository{s: s} }

func cloneField(f models.FieldConfig) models.FieldConfig {
	f.Options = cloneStrings(f.Options)
	return f
}

func (r *FieldConfigRepository) List(_ context.Context, entity string) ([]models.FieldConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.fields, func(f *models.FieldConfig) bool { return f.Entity == entity })
	sort.Slice(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].Key < items[j].Key
	})
	for i := range items {
		items[i] = cloneField(items[i])
	}
	return items, nil
}

func (r *FieldConfigRepository) GetByID(_ context.Context, entity, id string) (*models.FieldConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	f, ok := r.s.fields[id]
	if !ok || f.Entity != entity {
		return nil, repository.ErrFieldNotFound
	}
	f = cloneField(f)
	return &f, nil
}

func (r *FieldConfigRepository) Create(_ context.Context, f *models.FieldConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.fields {
		if existing.Entity == f.Entity && existing.Key == f.Key {
			return repository.ErrFieldExists
		}
	}
	now := r.s.now()
	f.ID = uuid.NewString()
	f.CreatedAt, f.UpdatedAt = now, now
	r.s.fields[f.ID] = cloneField(*f)
	return nil
}

func (r *FieldConfigRepository) Update(_ context.Context, f *models.FieldConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.fields[f.ID]
	if !ok || existing.Entity != f.Entity {
		return repository.ErrFieldNotFound
	}
	existing.Label = f.Label
	existing.Type = f.Type
	existing.Options = cloneStrings(f.Options)
	existing.Required = f.Required
	existing.Visible = f.Visible
	existing.Position = f.Position
	existing.UpdatedAt = r.s.now()
	r.s.fields[f.ID] = existing
	f.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *FieldConfigRepository) Delete(_ context.Context, entity, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.fields[id]
	if !ok || f.Entity != entity {
		return repository.ErrFieldNotFound
	}
	delete(r.s.fields, id)
	return nil
}

func (r *FieldConfigRepository) SetPositions(_ context.Context, entity string, keys []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pos := make(map[string]int, len(keys))
	for i, k := range keys {
		pos[k] = i
	}
	now := r.s.now()
	for id, f := range r.s.fields {
		if p, ok := pos[f.Key]; ok && f.Entity == entity {
			f.Position = p
			f.UpdatedAt = now
			r.s.fields[id] = f
		}
	}
	return nil
}
