package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// ContactRepository - in-memory реализация контактов.
type ContactRepository struct{ s *Store }

func (s *Store) Contacts() *ContactRepository { return &ContactRepository{s: s} }

func cloneContact(c models.Contact) models.Contact {
	c.Tags = cloneStrings(c.Tags)
	c.CustomFields = cloneFields(c.CustomFields)
	return c
}

func (r *ContactRepository) Create(_ context.Context, c *models.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	c.ID = uuid.New()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.CustomFields == nil {
		c.CustomFields = models.CustomFields{}
	}
	r.s.contacts[c.ID] = cloneContact(*c)
	return nil
}

func (r *ContactRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.contacts[id]
	if !ok {
		return nil, repository.ErrContactNotFound
	}
	c = cloneContact(c)
	return &c, nil
}

func (r *ContactRepository) Update(_ context.Context, c *models.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.contacts[c.ID]
	if !ok {
		return repository.ErrContactNotFound
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = r.s.now()
	r.s.contacts[c.ID] = cloneContact(*c)
	return nil
}

// Delete удаляет контакт и обнуляет ссылки на него, как ON DELETE SET NULL.
func (r *ContactRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.contacts[id]; !ok {
		return repository.ErrContactNotFound
	}
	delete(r.s.contacts, id)

	for k, d := range r.s.deals {
		if uuidEq(d.ContactID, id) {
			d.ContactID = nil
			r.s.deals[k] = d
		}
	}
	for k, a := range r.s.activities {
		if uuidEq(a.ContactID, id) {
			a.ContactID = nil
			r.s.activities[k] = a
		}
	}
	for k, p := range r.s.proposals {
		if uuidEq(p.ContactID, id) {
			p.ContactID = nil
			r.s.proposals[k] = p
		}
	}
	for k, a := range r.s.appointments {
		if uuidEq(a.ContactID, id) {
			a.ContactID = nil
			r.s.appointments[k] = a
		}
	}
	for listID, members := range r.s.members {
		kept := members[:0]
		for _, m := range members {
			if m.contactID != id {
				kept = append(kept, m)
			}
		}
		r.s.members[listID] = kept
	}
	return nil
}

func matchesContact(c *models.Contact, f models.ContactFilter) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		hay := []string{c.FirstName, c.LastName, deref(c.Email), deref(c.Company), deref(c.Phone)}
		found := false
		for _, h := range hay {
			if strings.Contains(strings.ToLower(h), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Tag != "" && !containsString(c.Tags, f.Tag) {
		return false
	}
	if f.OwnerID != nil && !uuidEq(c.OwnerID, *f.OwnerID) {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == c.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *ContactRepository) List(_ context.Context, f models.ContactFilter) ([]models.Contact, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.contacts, func(c *models.Contact) bool { return matchesContact(c, f) })
	newestFirst(items,
		func(c *models.Contact) time.Time { return c.CreatedAt },
		func(c *models.Contact) uuid.UUID { return c.ID })

	total := len(items)
	items = page(items, f.Limit, f.Offset)
	for i := range items {
		items[i] = cloneContact(items[i])
	}
	return items, total, nil
}

func (r *ContactRepository) CountByStatus(_ context.Context) (map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]int)
	for _, c := range r.s.contacts {
		out[c.Status]++
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func containsString(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
